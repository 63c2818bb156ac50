// Package permissions resolves which buildings a user may administer from
// directory group memberships, caching the outcome for a bounded time.
package permissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

//Directory answers group membership questions. A user that is not a member
//yields (false, nil); an error means the question could not be answered.
type Directory interface {
	IsMember(ctx context.Context, groupKey, email string) (bool, error)
}

//BuildingGroup ties a building code to the directory group administering it
type BuildingGroup struct {
	Building string
	Group    string
}

type matchKind int

const (
	noMatch matchKind = iota
	adminMatch
	buildingMatch
)

type match struct {
	kind     matchKind
	building string
}

type check func(ctx context.Context, dir Directory, email string) (match, error)

func adminCheck(group string) check {
	return func(ctx context.Context, dir Directory, email string) (match, error) {
		member, err := dir.IsMember(ctx, group, email)
		if err != nil || !member {
			return match{kind: noMatch}, err
		}
		return match{kind: adminMatch}, nil
	}
}

func buildingCheck(bg BuildingGroup) check {
	return func(ctx context.Context, dir Directory, email string) (match, error) {
		member, err := dir.IsMember(ctx, bg.Group, email)
		if err != nil || !member {
			return match{kind: noMatch}, err
		}
		return match{kind: buildingMatch, building: bg.Building}, nil
	}
}

//Options configures a Resolver
type Options struct {
	AdminGroup     string
	BuildingGroups []BuildingGroup
	//TTL bounds how long a verified resolution is trusted
	TTL time.Duration
	//ErrorTTL bounds how long a resolution derived from a directory failure is reused. Zero disables caching them.
	ErrorTTL time.Duration
	//Timeout bounds the whole directory round trip for one resolution
	Timeout time.Duration
}

//Resolver computes and caches permissions per user email
type Resolver struct {
	dir          Directory
	cache        Cache
	checks       []check
	allBuildings []string
	opts         Options
	log          logging.Logger
	now          func() time.Time
}

//NewResolver creates a resolver querying dir and caching into cache
func NewResolver(dir Directory, cache Cache, opts Options, log logging.Logger) *Resolver {
	r := &Resolver{
		dir:   dir,
		cache: cache,
		opts:  opts,
		log:   log,
		now:   time.Now,
	}

	r.checks = append(r.checks, adminCheck(opts.AdminGroup))
	for _, bg := range opts.BuildingGroups {
		r.checks = append(r.checks, buildingCheck(bg))
		r.allBuildings = append(r.allBuildings, bg.Building)
	}

	return r
}

//Resolve returns the permission for email. It never fails: any problem
//talking to the directory resolves to no access.
func (r *Resolver) Resolve(ctx context.Context, email string) models.Permission {
	key := normalize(email)
	if key == "" {
		return models.NoAccess()
	}

	if e, ok := r.cache.Get(ctx, key); ok && r.fresh(e) {
		r.log.Debugf("using cached permissions for %s", key)
		return e.Permission
	}

	perm, err := r.query(ctx, key)
	if err != nil {
		r.log.Errorf("directory lookup failed for %s, falling back to no access: %s", key, err.Error())
		if r.opts.ErrorTTL > 0 {
			r.cache.Set(ctx, key, Entry{Permission: perm, ResolvedAt: r.now(), Verified: false})
		} else {
			r.cache.Delete(ctx, key)
		}
		return perm
	}

	r.cache.Set(ctx, key, Entry{Permission: perm, ResolvedAt: r.now(), Verified: true})

	switch perm.Level {
	case models.LevelDistrict:
		r.log.Infof("district admin access granted for %s", key)
	case models.LevelBuilding:
		r.log.Infof("building admin access granted for %s: %s", key, strings.Join(perm.Buildings, ", "))
	default:
		r.log.Infof("no signage group access for %s", key)
	}

	return perm
}

func (r *Resolver) query(ctx context.Context, email string) (models.Permission, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	buildings := []string{}
	for _, c := range r.checks {
		m, err := c(ctx, r.dir, email)
		if err != nil {
			return models.NoAccess(), fmt.Errorf("membership check failed: %w", err)
		}

		switch m.kind {
		case adminMatch:
			return models.DistrictAccess(r.allBuildings), nil
		case buildingMatch:
			buildings = append(buildings, m.building)
		}
	}

	return models.BuildingAccess(buildings), nil
}

func (r *Resolver) fresh(e Entry) bool {
	return r.now().Sub(e.ResolvedAt) < r.ttlFor(e)
}

func (r *Resolver) ttlFor(e Entry) time.Duration {
	if e.Verified {
		return r.opts.TTL
	}
	return r.opts.ErrorTTL
}

//Invalidate drops the cached permission for email so the next Resolve queries the directory
func (r *Resolver) Invalidate(ctx context.Context, email string) {
	r.cache.Delete(ctx, normalize(email))
}

//Sweep evicts expired cache entries and reports how many were removed
func (r *Resolver) Sweep(ctx context.Context) int {
	return r.cache.Sweep(ctx, func(e Entry) bool {
		return !r.fresh(e)
	})
}

//Run sweeps the cache every interval until ctx is cancelled
func (r *Resolver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.Sweep(ctx); removed > 0 {
				r.log.Infof("evicted %d expired permission cache entries", removed)
			}
		}
	}
}

//AllBuildings returns every building code the resolver knows about, in configuration order
func (r *Resolver) AllBuildings() []string {
	return append([]string{}, r.allBuildings...)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
