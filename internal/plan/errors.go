package plan

import "errors"

// errEmptyTargetKind is returned by parseTargetKind when target_kind
// deserialises to an empty array. Callers wrap this with the JSON path
// that produced it via cgerrors.PlanShapeError.
var errEmptyTargetKind = errors.New("target_kind is empty")
