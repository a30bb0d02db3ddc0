package sharing

import "github.com/the-dev-tools/recordsync/pkg/model/mshare"

// state is one of idle, synchronizing, presenting or committing. Each
// transition replaces the whole value, so data that only makes sense in one
// state cannot leak into another.
type state interface {
	String() string
	isState()
}

type idle struct{}

type synchronizing struct{}

type presenting struct {
	share *mshare.Share
}

type committing struct {
	stopping bool
}

func (idle) String() string          { return "idle" }
func (synchronizing) String() string { return "synchronizing" }
func (presenting) String() string    { return "presenting" }
func (committing) String() string    { return "committing" }

func (idle) isState()          {}
func (synchronizing) isState() {}
func (presenting) isState()    {}
func (committing) isState()    {}
