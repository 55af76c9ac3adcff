package engine

import (
	"time"

	"github.com/roach88/stackline/internal/ir"
)

// argReader reads typed record arguments and keeps the first failure, so a
// dispatcher can read everything it needs and check once.
type argReader struct {
	op    ir.Op
	obj   ir.IRObject
	first error
}

func (r *argReader) fail(err error) {
	if r.first == nil {
		r.first = badArgument(string(r.op), err)
	}
}

func (r *argReader) err() error {
	return r.first
}

func (r *argReader) str(key string) string {
	s, err := r.obj.GetString(key)
	if err != nil {
		r.fail(err)
	}
	return s
}

func (r *argReader) optStr(key, def string) string {
	s, err := r.obj.OptString(key, def)
	if err != nil {
		r.fail(err)
	}
	return s
}

func (r *argReader) integer(key string) int {
	n, err := r.obj.GetInt(key)
	if err != nil {
		r.fail(err)
	}
	return int(n)
}

func (r *argReader) boolean(key string) bool {
	b, err := r.obj.GetBool(key)
	if err != nil {
		r.fail(err)
	}
	return b
}

func (r *argReader) float(key string) float64 {
	f, err := r.obj.GetFloat(key)
	if err != nil {
		r.fail(err)
	}
	return f
}

func (r *argReader) dur(key string) time.Duration {
	d, err := r.obj.GetDuration(key)
	if err != nil {
		r.fail(err)
	}
	return d
}

func (r *argReader) optDur(key string, def time.Duration) time.Duration {
	d, err := r.obj.OptDuration(key, def)
	if err != nil {
		r.fail(err)
	}
	return d
}

func (r *argReader) strs(key string) []string {
	s, err := r.obj.GetStrings(key)
	if err != nil {
		r.fail(err)
	}
	return s
}

func (r *argReader) objs(key string) []ir.IRObject {
	o, err := r.obj.GetObjects(key)
	if err != nil {
		r.fail(err)
	}
	return o
}

func (r *argReader) element() ir.ElementID {
	return ir.ElementID(r.str("element"))
}

func (r *argReader) object() ir.ObjectID {
	return ir.ObjectID(r.str("object"))
}
