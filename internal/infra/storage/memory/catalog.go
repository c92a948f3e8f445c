package memory

import (
	"context"
	"sort"

	"activityhub/internal/domain/catalog"
)

var (
	vendorEntity = entity[*catalog.Vendor]{
		what:    "vendor",
		version: func(v *catalog.Vendor) int64 { return v.Version },
		bump:    func(v *catalog.Vendor) { v.Version++ },
		clone:   (*catalog.Vendor).Clone,
	}
	resourceEntity = entity[*catalog.Resource]{
		what:    "resource",
		version: func(r *catalog.Resource) int64 { return r.Version },
		bump:    func(r *catalog.Resource) { r.Version++ },
		clone:   (*catalog.Resource).Clone,
	}
)

type vendorRepo struct{ u *Unit }

func (r vendorRepo) ByID(_ context.Context, id catalog.VendorID) (*catalog.Vendor, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return load(r.u, vendorEntity, r.u.vendors, r.u.store.vendors, id)
}

func (r vendorRepo) Save(_ context.Context, v *catalog.Vendor) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return save(r.u, vendorEntity, r.u.vendors, r.u.store.vendors, v.ID, v, nil)
}

type resourceRepo struct{ u *Unit }

func (r resourceRepo) ByID(_ context.Context, id catalog.ResourceID) (*catalog.Resource, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return load(r.u, resourceEntity, r.u.resources, r.u.store.resources, id)
}

func (r resourceRepo) Save(_ context.Context, res *catalog.Resource) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return save(r.u, resourceEntity, r.u.resources, r.u.store.resources, res.ID, res, nil)
}

func (r resourceRepo) ListByVendor(_ context.Context, vendorID catalog.VendorID) ([]*catalog.Resource, error) {
	u := r.u
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.guard(false); err != nil {
		return nil, err
	}
	u.store.mu.RLock()
	out := merged(u.store.resources, u.resources, resourceEntity.clone, func(res *catalog.Resource) bool {
		return res.VendorID == vendorID
	})
	u.store.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r resourceRepo) NextSequence(context.Context) (int64, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceSeq++
	return s.resourceSeq, nil
}
