package client

// InvalidVersion is what GetVersion reports for a nil or detached handle.
const InvalidVersion int64 = -1

// SetVersion records v as the last change version h observed. Concurrent
// callers may finish out of order, so a smaller value never replaces a larger
// one.
func (r *Registry) SetVersion(h *Handle, v int64) {
	if h == nil {
		return
	}
	for {
		cur := h.version.Load()
		if v <= cur {
			return
		}
		if h.version.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (r *Registry) GetVersion(h *Handle) int64 {
	if h == nil || !h.attached.Load() {
		return InvalidVersion
	}
	return h.version.Load()
}
