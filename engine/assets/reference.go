package assets

import "github.com/spaghettifunk/anima-content/engine/core"

// Reference is a plain retain/release counter. It is only touched from the
// driver goroutine.
type Reference struct {
	count int
}

func (r *Reference) Retain() {
	r.count++
}

// Release decrements the counter. Releasing an unreferenced object logs a
// warning and leaves the counter untouched.
func (r *Reference) Release() {
	if r.count <= 0 {
		core.LogWarn("release called on an unreferenced object")
		return
	}
	r.count--
}

func (r *Reference) Count() int {
	return r.count
}

func (r *Reference) Unused() bool {
	return r.count <= 0
}
