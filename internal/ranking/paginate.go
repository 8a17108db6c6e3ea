package ranking

// Paginate returns the window [skip*take, skip*take+take) of events. Windows
// past the end of the list clamp naturally to an empty (non-nil) slice; a
// take <= 0 or negative skip is ErrInvalidPageSpec.
func Paginate(events []Ranked, skip, take int) ([]Ranked, error) {
	if err := (PageSpec{Skip: skip, Take: take}).Validate(); err != nil {
		return nil, err
	}

	begin := skip * take
	if begin >= len(events) {
		return []Ranked{}, nil
	}

	end := begin + take
	if end > len(events) {
		end = len(events)
	}

	out := make([]Ranked, end-begin)
	copy(out, events[begin:end])
	return out, nil
}
