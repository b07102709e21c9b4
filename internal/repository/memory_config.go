package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"openelis-alert/internal/models"
)

// MemoryNotificationConfigRepo 内存通知配置仓库
type MemoryNotificationConfigRepo struct {
	mu     sync.RWMutex
	nextID int64
	opts   map[string]models.NotificationConfigOption // nature|method|person -> option
}

func NewMemoryNotificationConfigRepo() *MemoryNotificationConfigRepo {
	return &MemoryNotificationConfigRepo{
		opts: map[string]models.NotificationConfigOption{},
	}
}

var _ NotificationConfigRepository = (*MemoryNotificationConfigRepo)(nil)

func optionKey(nature models.NotificationNature, method models.NotificationMethod, personType models.NotificationPersonType) string {
	return string(nature) + "|" + string(method) + "|" + string(personType)
}

func (r *MemoryNotificationConfigRepo) GetByNature(_ context.Context, nature models.NotificationNature) ([]*models.NotificationConfigOption, error) {
	return r.list(func(o models.NotificationConfigOption) bool { return o.Nature == nature }), nil
}

func (r *MemoryNotificationConfigRepo) GetByNatureAndMethod(_ context.Context, nature models.NotificationNature, method models.NotificationMethod, personType models.NotificationPersonType) (*models.NotificationConfigOption, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.opts[optionKey(nature, method, personType)]
	if !ok {
		return nil, fmt.Errorf("notification config %s/%s: %w", nature, method, ErrNotFound)
	}
	return &o, nil
}

func (r *MemoryNotificationConfigRepo) GetAllAlertConfigs(_ context.Context) ([]*models.NotificationConfigOption, error) {
	return r.list(func(o models.NotificationConfigOption) bool {
		_, err := models.ParseNotificationNature(string(o.Nature))
		return err == nil
	}), nil
}

func (r *MemoryNotificationConfigRepo) Upsert(_ context.Context, opt *models.NotificationConfigOption) error {
	if opt == nil {
		return fmt.Errorf("notification config is required")
	}
	if opt.PersonType == "" {
		opt.PersonType = models.PersonTypeProvider
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := optionKey(opt.Nature, opt.Method, opt.PersonType)
	if cur, ok := r.opts[k]; ok {
		opt.ID = cur.ID
	} else {
		r.nextID++
		opt.ID = r.nextID
	}
	r.opts[k] = *opt
	return nil
}

func (r *MemoryNotificationConfigRepo) list(match func(models.NotificationConfigOption) bool) []*models.NotificationConfigOption {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.NotificationConfigOption{}
	for _, o := range r.opts {
		if match(o) {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MemorySiteInformationRepo 内存站点配置仓库
type MemorySiteInformationRepo struct {
	mu    sync.RWMutex
	items map[string]models.SiteInformation
}

func NewMemorySiteInformationRepo() *MemorySiteInformationRepo {
	return &MemorySiteInformationRepo{
		items: map[string]models.SiteInformation{},
	}
}

var _ SiteInformationRepository = (*MemorySiteInformationRepo)(nil)

func (r *MemorySiteInformationRepo) GetByName(_ context.Context, name string) (*models.SiteInformation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.items[name]
	if !ok {
		return nil, fmt.Errorf("site information %q: %w", name, ErrNotFound)
	}
	return &info, nil
}

func (r *MemorySiteInformationRepo) Save(_ context.Context, info *models.SiteInformation) error {
	if info == nil || info.Name == "" {
		return fmt.Errorf("site information name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[info.Name] = *info
	return nil
}

// ProfileAssignment 冷库与阈值模板的生效区间
type ProfileAssignment struct {
	FreezerID      int64
	Profile        models.ThresholdProfile
	EffectiveStart time.Time
	EffectiveEnd   *time.Time
}

// MemoryThresholdsRepo 内存阈值仓库
type MemoryThresholdsRepo struct {
	mu          sync.RWMutex
	freezers    map[int64]models.Freezer
	assignments []ProfileAssignment
}

func NewMemoryThresholdsRepo() *MemoryThresholdsRepo {
	return &MemoryThresholdsRepo{
		freezers: map[int64]models.Freezer{},
	}
}

var _ ThresholdsRepository = (*MemoryThresholdsRepo)(nil)

func (r *MemoryThresholdsRepo) PutFreezer(f models.Freezer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freezers[f.ID] = f
}

func (r *MemoryThresholdsRepo) Assign(a ProfileAssignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = append(r.assignments, a)
}

func (r *MemoryThresholdsRepo) GetFreezer(_ context.Context, freezerID int64) (*models.Freezer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.freezers[freezerID]
	if !ok {
		return nil, fmt.Errorf("freezer %d: %w", freezerID, ErrNotFound)
	}
	return &f, nil
}

func (r *MemoryThresholdsRepo) GetActiveProfile(_ context.Context, freezerID int64, at time.Time) (*models.ThresholdProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *ProfileAssignment
	for i := range r.assignments {
		a := &r.assignments[i]
		if a.FreezerID != freezerID || a.EffectiveStart.After(at) {
			continue
		}
		if a.EffectiveEnd != nil && !a.EffectiveEnd.After(at) {
			continue
		}
		if best == nil || a.EffectiveStart.After(best.EffectiveStart) {
			best = a
		}
	}
	if best == nil {
		return nil, fmt.Errorf("threshold profile for freezer %d: %w", freezerID, ErrNotFound)
	}
	p := best.Profile
	return &p, nil
}
