package engine

import (
	"time"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/keyframe"
	"github.com/roach88/stackline/internal/objects"
)

// outcome is what a dispatched edit did.
type outcome struct {
	result   objects.Result
	seek     bool
	position time.Duration
	errs     []error
}

func done(res objects.Result, err error) (outcome, error) {
	return outcome{result: res}, err
}

// dispatch interprets one record. Generated ids are written into rec.Args
// before the edit runs so the record replays identically.
func (t *Timeline) dispatch(rec *ir.EditRecord) (outcome, error) {
	a := &argReader{op: rec.Op, obj: rec.Args}

	switch rec.Op {
	case ir.OpAddTrack:
		id, medium := a.str("id"), a.str("medium")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		m, err := ir.ParseMedium(medium)
		if err != nil {
			return outcome{}, badArgument(string(rec.Op), err)
		}
		return outcome{}, t.store.AddTrack(ir.Track{ID: ir.TrackID(id), Medium: m})

	case ir.OpAddLayer, ir.OpMoveLayer:
		id, rank := a.str("id"), a.integer("rank")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		if rec.Op == ir.OpAddLayer {
			return done(t.objects.AddLayer(ir.LayerID(id), rank))
		}
		return done(t.objects.MoveLayer(ir.LayerID(id), rank))

	case ir.OpRemoveLayer:
		id := a.str("id")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.RemoveLayer(ir.LayerID(id)))

	case ir.OpAddElement:
		return t.addElement(rec, a)

	case ir.OpCreateObject:
		return t.createObject(rec, a)

	case ir.OpRemove:
		el := a.element()
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.RemoveElement(el))

	case ir.OpMove:
		el, start := a.element(), a.dur("start")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.MoveElement(el, start))

	case ir.OpTrim:
		el := a.element()
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		cur, err := t.store.Get(el)
		if err != nil {
			return outcome{}, err
		}
		start := a.optDur("start", cur.Start)
		duration := a.optDur("duration", cur.Duration)
		inPoint := a.optDur("in_point", cur.InPoint)
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.TrimElement(el, start, duration, inPoint))

	case ir.OpSetPriority:
		el, prio := a.element(), a.integer("priority")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.SetPriority(el, prio))

	case ir.OpSetActive:
		el, active := a.element(), a.boolean("active")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.SetActive(el, active))

	case ir.OpRemoveObject:
		id := a.object()
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.Remove(id))

	case ir.OpMoveObject:
		id, start := a.object(), a.dur("start")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.Move(id, start))

	case ir.OpTrimObject:
		id, start, duration := a.object(), a.dur("start"), a.dur("duration")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.Trim(id, start, duration))

	case ir.OpSplit:
		return t.split(rec, a)

	case ir.OpGroup:
		ids := a.strs("objects")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		target := ir.ObjectID(t.fill(rec, "id", PrefixObject))
		return done(t.objects.Group(toIDs[ir.ObjectID](ids), target))

	case ir.OpUngroup:
		id := a.object()
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		media, err := t.objects.Media(id)
		if err != nil {
			return outcome{}, err
		}
		newIDs, err := t.fillList(rec, "new_ids", PrefixObject, len(media)-1)
		if err != nil {
			return outcome{}, err
		}
		return done(t.objects.Ungroup(id, toIDs[ir.ObjectID](newIDs)))

	case ir.OpMoveToLayer:
		id, layer := a.object(), a.str("layer")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		return done(t.objects.MoveToLayer(id, ir.LayerID(layer)))

	case ir.OpSetKeyframe:
		return t.setKeyframe(a)

	case ir.OpRemoveKey:
		return t.removeKeyframe(a)

	case ir.OpSeek:
		pos := a.dur("position")
		if err := a.err(); err != nil {
			return outcome{}, err
		}
		if pos < 0 {
			return outcome{}, ir.NewInvalidRange("", "position %s must not be negative", pos)
		}
		return outcome{seek: true, position: pos}, nil

	case ir.OpAssetInfo:
		return t.assetResolved(a)

	default:
		return outcome{}, &DispatchError{Code: ErrCodeUnknownOp, Op: string(rec.Op), Message: "unknown op"}
	}
}

func (t *Timeline) addElement(rec *ir.EditRecord, a *argReader) (outcome, error) {
	if obj, ok := rec.Args["object"].(ir.IRString); ok {
		if _, err := t.objects.Get(ir.ObjectID(obj)); err == nil {
			m := t.member(rec.Args, a)
			if err := a.err(); err != nil {
				return outcome{}, err
			}
			return done(t.objects.AddMember(ir.ObjectID(obj), m))
		}
	}
	layer := a.str("layer")
	if err := a.err(); err != nil {
		return outcome{}, err
	}
	m := t.member(rec.Args, a)
	if err := a.err(); err != nil {
		return outcome{}, err
	}
	obj := t.fill(rec, "object", PrefixObject)
	return done(t.objects.Create(ir.ObjectID(obj), ir.LayerID(layer), []objects.Member{m}))
}

func (t *Timeline) createObject(rec *ir.EditRecord, a *argReader) (outcome, error) {
	layer := a.str("layer")
	specs := a.objs("members")
	if err := a.err(); err != nil {
		return outcome{}, err
	}
	members := make([]objects.Member, len(specs))
	for i, spec := range specs {
		r := &argReader{op: rec.Op, obj: spec}
		members[i] = t.member(spec, r)
		if err := r.err(); err != nil {
			return outcome{}, err
		}
	}
	id := t.fill(rec, "id", PrefixObject)
	return done(t.objects.Create(ir.ObjectID(id), ir.LayerID(layer), members))
}

// member reads an element description. A missing id is generated and
// written back into obj.
func (t *Timeline) member(obj ir.IRObject, a *argReader) objects.Member {
	if !obj.Has("id") {
		obj["id"] = ir.IRString(t.ids.Generate(PrefixElement))
	}
	e := ir.TrackElement{
		ID:       ir.ElementID(a.str("id")),
		TrackID:  ir.TrackID(a.str("track")),
		Effect:   a.optStr("effect", ""),
		AssetID:  a.optStr("asset", ""),
		Start:    a.dur("start"),
		Duration: a.dur("duration"),
		InPoint:  a.optDur("in_point", 0),
	}
	kind := a.optStr("kind", ir.KindSource.String())
	if a.err() == nil {
		k, err := ir.ParseKind(kind)
		if err != nil {
			a.fail(err)
		}
		e.Kind = k
	}
	if obj.Has("expandable") {
		e.Expandable = a.boolean("expandable")
	}
	m := objects.Member{Element: e}
	if obj.Has("priority") {
		m.Element.Priority = a.integer("priority")
		m.Explicit = true
	}
	return m
}

func (t *Timeline) split(rec *ir.EditRecord, a *argReader) (outcome, error) {
	id, at := a.object(), a.dur("at")
	if err := a.err(); err != nil {
		return outcome{}, err
	}
	o, err := t.objects.Get(id)
	if err != nil {
		return outcome{}, err
	}
	newObject := t.fill(rec, "new_object", PrefixObject)
	newIDs, err := t.fillList(rec, "new_ids", PrefixElement, len(o.Members))
	if err != nil {
		return outcome{}, err
	}
	return done(t.objects.Split(id, at, ir.ObjectID(newObject), toIDs[ir.ElementID](newIDs)))
}

func (t *Timeline) setKeyframe(a *argReader) (outcome, error) {
	el, prop, at, value := a.element(), a.str("property"), a.dur("at"), a.float("value")
	modeName := a.optStr("mode", "linear")
	if err := a.err(); err != nil {
		return outcome{}, err
	}
	mode, err := keyframe.ParseMode(modeName)
	if err != nil {
		return outcome{}, badArgument(string(a.op), err)
	}
	e, err := t.store.Get(el)
	if err != nil {
		return outcome{}, err
	}
	key := keyframe.Key{Element: el, Property: prop}
	cur := t.curves.Load(key)
	if cur == nil {
		cur = keyframe.New(e.Duration)
	}
	next, err := cur.Insert(at, value, mode)
	if err != nil {
		return outcome{}, withID(err, string(el))
	}
	t.curves.Store(key, next)
	return outcome{}, nil
}

func (t *Timeline) removeKeyframe(a *argReader) (outcome, error) {
	el, prop, at := a.element(), a.str("property"), a.dur("at")
	if err := a.err(); err != nil {
		return outcome{}, err
	}
	key := keyframe.Key{Element: el, Property: prop}
	cur := t.curves.Load(key)
	if cur == nil {
		return outcome{}, ir.NewNotFound("curve", string(el)+"/"+prop)
	}
	next, err := cur.Remove(at)
	if err != nil {
		return outcome{}, withID(err, string(el))
	}
	if next.Len() == 0 {
		next = nil
	}
	t.curves.Store(key, next)
	return outcome{}, nil
}

// fill returns the string argument key, generating and recording it when
// absent.
func (t *Timeline) fill(rec *ir.EditRecord, key, prefix string) string {
	if s, ok := rec.Args[key].(ir.IRString); ok {
		return string(s)
	}
	id := t.ids.Generate(prefix)
	rec.Args[key] = ir.IRString(id)
	return id
}

// fillList is fill for a list of n ids.
func (t *Timeline) fillList(rec *ir.EditRecord, key, prefix string, n int) ([]string, error) {
	if rec.Args.Has(key) {
		ids, err := rec.Args.GetStrings(key)
		if err != nil {
			return nil, badArgument(string(rec.Op), err)
		}
		return ids, nil
	}
	ids := make([]string, max(n, 0))
	for i := range ids {
		ids[i] = t.ids.Generate(prefix)
	}
	rec.Args[key] = ir.StringArray(ids)
	return ids, nil
}

func toIDs[S ~string](in []string) []S {
	out := make([]S, len(in))
	for i, s := range in {
		out[i] = S(s)
	}
	return out
}

func withID(err error, id string) error {
	if ee, ok := err.(*ir.EditError); ok && ee.ID == "" {
		cp := *ee
		cp.ID = id
		return &cp
	}
	return err
}
