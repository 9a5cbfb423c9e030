package timetable

// OcclusionRun walks forward from start within the same day and returns the
// slots a lesson of the given length would consume. It returns nil when the
// day ends before the length is covered.
func (t *Table) OcclusionRun(start, length int) []int {
	day := t.Slots[start].Day
	remaining := length
	var run []int
	for s := start; s < len(t.Slots) && t.Slots[s].Day == day; s++ {
		run = append(run, s)
		remaining -= t.Slots[s].Duration
		if remaining <= 0 {
			return run
		}
	}
	return nil
}

func (t *Table) computeOcclusion() {
	numSlots := len(t.Slots)
	t.PersonSlotOcclusion = make([][][]int, len(t.People))
	t.SlotPersonOcclusion = make([][][]int, numSlots)
	for s := range t.SlotPersonOcclusion {
		t.SlotPersonOcclusion[s] = make([][]int, len(t.People))
	}

	for p := 1; p < len(t.People); p++ {
		person := &t.People[p]
		t.PersonSlotOcclusion[p] = make([][]int, numSlots)
		for s := 0; s < numSlots; s++ {
			run := t.OcclusionRun(s, person.LessonLength)
			if run == nil {
				// No lesson can start here, not even a forced one.
				person.Preference[s] = PreferenceUnavailable
				continue
			}
			t.PersonSlotOcclusion[p][s] = run
			for _, occluded := range run {
				t.SlotPersonOcclusion[occluded][p] = append(t.SlotPersonOcclusion[occluded][p], s)
			}
		}
	}
}
