package realtime

import "context"

// WaitForChange blocks until the value at path has a version newer than
// since, or until ctx is done. In the second case it returns the latest value
// seen, so callers always get a usable snapshot back.
func WaitForChange(ctx context.Context, db Database, path string, since uint64) (Snapshot, error) {
	latest := make(chan Snapshot, 1)
	unsub, err := db.OnValue(path, func(s Snapshot) {
		select {
		case <-latest:
		default:
		}
		latest <- s
	})
	if err != nil {
		return Snapshot{}, err
	}
	defer unsub()

	var last Snapshot
	seen := false
	for {
		select {
		case s := <-latest:
			last, seen = s, true
			if s.Version > since {
				return s, nil
			}
		case <-ctx.Done():
			if seen {
				return last, nil
			}
			return db.Get(context.Background(), path)
		}
	}
}
