package slides

import "testing"

func TestThatExtractIDHandlesPresentationLinks(t *testing.T) {
	links := []string{
		"https://docs.google.com/presentation/d/1E7v2rVGN8TabxalUlXSHE2zEhJxv0tEXiCxE3FD99Ic/edit#slide=id.p",
		"https://docs.google.com/presentation/d/1E7v2rVGN8TabxalUlXSHE2zEhJxv0tEXiCxE3FD99Ic/preview",
		"  https://docs.google.com/presentation/d/1E7v2rVGN8TabxalUlXSHE2zEhJxv0tEXiCxE3FD99Ic/embed?start=true ",
		"1E7v2rVGN8TabxalUlXSHE2zEhJxv0tEXiCxE3FD99Ic",
	}

	for _, link := range links {
		id, ok := ExtractID(link)
		if !ok || id != "1E7v2rVGN8TabxalUlXSHE2zEhJxv0tEXiCxE3FD99Ic" {
			t.Errorf("ExtractID(%q) = %q, %v", link, id, ok)
		}
	}
}

func TestThatExtractIDRejectsUnknownInput(t *testing.T) {
	for _, link := range []string{"", "   ", "short", "https://example.com/slides"} {
		if id, ok := ExtractID(link); ok {
			t.Errorf("ExtractID(%q) should fail, got %q", link, id)
		}
	}
}

func TestNormalize(t *testing.T) {
	const id = "1E7v2rVGN8TabxalUlXSHE2zEhJxv0tEXiCxE3FD99Ic"

	if got := Normalize("https://docs.google.com/presentation/d/"+id+"/edit", ""); got != id {
		t.Errorf("slide link not cleaned: %q", got)
	}
	if got := Normalize("", "https://docs.google.com/presentation/d/"+id+"/edit"); got != id {
		t.Errorf("presentation link not used: %q", got)
	}
	if got := Normalize("explicit", "https://docs.google.com/presentation/d/"+id+"/edit"); got != "explicit" {
		t.Errorf("explicit slide id should win, got %q", got)
	}
}
