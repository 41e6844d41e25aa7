package model

// Canonical parameter-store field names. These are the request fields a user
// can supply incrementally across turns; tool arguments use the same names so
// the merge rule in Sync applies uniformly.
const (
	FieldDeviceCategoryCode = "deviceCategoryCode"
	FieldLocationCode       = "locationCode"
	FieldDataProductCode    = "dataProductCode"
	FieldExtension          = "extension"
	FieldDateFrom           = "dateFrom"
	FieldDateTo             = "dateTo"
	FieldPropertyCode       = "propertyCode"
	FieldQualityControl     = "dpo_qualityControl"
	FieldDataGaps           = "dpo_dataGaps"
	FieldResample           = "dpo_resample"
	FieldAverage            = "dpo_average"
	FieldMinMax             = "dpo_minMax"
	FieldMinMaxAvg          = "dpo_minMaxAvg"
)

// CanonicalFields lists every field the store may carry, in display order.
var CanonicalFields = []string{
	FieldDeviceCategoryCode,
	FieldLocationCode,
	FieldDataProductCode,
	FieldExtension,
	FieldDateFrom,
	FieldDateTo,
	FieldPropertyCode,
	FieldQualityControl,
	FieldDataGaps,
	FieldResample,
	FieldAverage,
	FieldMinMax,
	FieldMinMaxAvg,
}

// ParameterStore accumulates resolved request fields for one conversation
// across turns. An empty string means the field is unset. The store has a
// single mutator, Sync, so every tool merges caller arguments the same way.
type ParameterStore struct {
	Values map[string]string `json:"values"`
}

// NewParameterStore returns an empty store.
func NewParameterStore() *ParameterStore {
	return &ParameterStore{Values: map[string]string{}}
}

// Sync applies the per-field merge rule:
//   - local unset: pull the stored value (may remain unset);
//   - local set: overwrite the stored value.
//
// The resolved value is returned. A user-supplied value is never silently
// replaced by a stale stored one.
func (s *ParameterStore) Sync(field, local string) string {
	if s.Values == nil {
		s.Values = map[string]string{}
	}
	if local == "" {
		return s.Values[field]
	}
	s.Values[field] = local
	return local
}

// Get returns the stored value for field without mutating the store.
func (s *ParameterStore) Get(field string) string {
	if s == nil || s.Values == nil {
		return ""
	}
	return s.Values[field]
}

// Known returns a snapshot of every field with a non-empty resolved value,
// used for user-facing "already obtained" messages and for re-attaching to
// the next turn's store.
func (s *ParameterStore) Known() map[string]string {
	out := map[string]string{}
	if s == nil {
		return out
	}
	for k, v := range s.Values {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Clear drops every stored field. Called after a non-download tool completes
// successfully so parameters never leak into an unrelated request.
func (s *ParameterStore) Clear() {
	s.Values = map[string]string{}
}

// ClearDates invalidates the date window while preserving everything else.
// Used when the upstream reports the device was not deployed in the window.
func (s *ParameterStore) ClearDates() {
	if s.Values == nil {
		return
	}
	delete(s.Values, FieldDateFrom)
	delete(s.Values, FieldDateTo)
}

// IsEmpty reports whether the store carries no resolved values.
func (s *ParameterStore) IsEmpty() bool {
	return s == nil || len(s.Known()) == 0
}
