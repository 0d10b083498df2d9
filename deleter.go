package h5ar

import (
	"github.com/jhdf5io/h5ar/storage"
)

// Deleter removes entries from both HDF5 storage and the parent index
// (spec §4.4).
type Deleter struct {
	storage  storage.Capability
	provider *IndexProvider
	errStrat ErrorStrategy
}

// NewDeleter builds a Deleter over a shared storage handle and index
// provider.
func NewDeleter(storageCap storage.Capability, provider *IndexProvider, errStrat ErrorStrategy) *Deleter {
	if errStrat == nil {
		errStrat = FailFastErrorStrategy{}
	}
	return &Deleter{storage: storageCap, provider: provider, errStrat: errStrat}
}

// Delete removes each of paths. onDeleted, if non-nil, is called once
// per successfully deleted path. Each path is handled independently;
// a failure on one is routed through the error strategy, which decides
// whether the rest of the batch proceeds (ContinueErrorStrategy) or
// Delete returns the error (FailFastErrorStrategy).
func (d *Deleter) Delete(paths []string, onDeleted func(path string)) error {
	for _, p := range paths {
		if err := d.deleteOne(p); err != nil {
			if herr := d.errStrat.Handle(err); herr != nil {
				return herr
			}
			continue
		}
		if onDeleted != nil {
			onDeleted(p)
		}
	}
	return nil
}

func (d *Deleter) deleteOne(path string) error {
	if d.storage.ReadOnly() {
		return storage.ErrReadOnly
	}
	parent, name, err := splitArchivePath(path)
	if err != nil {
		return err
	}

	idx, err := d.provider.Get(parent, false)
	if err != nil {
		return err
	}

	// Tolerate an out-of-sync index: if there is no record, fall back
	// to the HDF5 link info so the object can still be removed (spec
	// §4.4).
	if _, ok := idx.Store().TryGet(name); !ok {
		if _, err := d.storage.GetLinkInfo(path); err != nil {
			return err
		}
	}

	if err := d.storage.Delete(path); err != nil {
		return err
	}
	idx.Store().Remove(name)
	idx.MarkDirty()
	// If path was itself a group, drop its own cached index so a later
	// re-creation starts fresh (a no-op when nothing is cached).
	d.provider.Invalidate(path)
	return nil
}
