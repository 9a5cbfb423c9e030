package pbo

import (
	"github.com/noah-isme/lesson-scheduler/internal/timetable"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// preferencePenalty charges ranked preferences above neutral per minute.
func (c *compiler) preferencePenalty() error {
	group := c.newGroup(GroupPreference)
	for _, person := range c.table.People {
		penalties := c.opts.PupilPreferencePenalties
		if person.IsInstructor() {
			penalties = c.opts.InstructorPreferencePenalties
		}
		for s, pref := range person.Preference {
			if pref <= timetable.PreferenceNeutral {
				continue
			}
			if _, ok := c.problem.Var(person.Index, s); !ok {
				continue
			}
			if pref-2 >= len(penalties) {
				return appErrors.Newf(appErrors.ErrConfig,
					"%s uses preference %d at %q but the penalty list has %d entries",
					person.Name, pref, c.table.Slots[s].Name, len(penalties))
			}
			weight := penalties[pref-2] * c.table.Slots[s].Duration
			c.addTerm(group, weight, person.Index, []int{s}, []bool{false})
		}
	}
	return nil
}

// arriveLateBonus rewards the instructor's first busy slot for each minute
// it falls after the start of the workday. Each term covers one more slot
// than the last, so only the marginal lateness is rewarded.
func (c *compiler) arriveLateBonus() error {
	group := c.newGroup(GroupArriveLate)
	for d := 0; d < timetable.DaysPerWeek; d++ {
		day := c.table.Workday[d]
		for i := 1; i < len(day); i++ {
			walk := day[:i+1]
			minutes := c.table.Slots[walk[i]].Minute - c.table.Slots[walk[0]].Minute
			c.addTerm(group, -c.opts.ArriveLateBonus*minutes, timetable.InstructorIndex, walk, leadingFree(len(walk)))
		}
	}
	return nil
}

// leaveEarlyBonus mirrors arriveLateBonus from the end of the workday.
func (c *compiler) leaveEarlyBonus() error {
	group := c.newGroup(GroupLeaveEarly)
	for d := 0; d < timetable.DaysPerWeek; d++ {
		day := c.table.Workday[d]
		var walk []int
		for i := len(day) - 1; i >= 0; i-- {
			walk = append(walk, day[i])
			if len(walk) < 2 {
				continue
			}
			minutes := c.table.Slots[walk[0]].End() - c.table.Slots[day[i]].End()
			slots := append([]int(nil), walk...)
			c.addTerm(group, -c.opts.LeaveEarlyBonus*minutes, timetable.InstructorIndex, slots, leadingFree(len(slots)))
		}
	}
	return nil
}

// leadingFree negates every literal but the last.
func leadingFree(n int) []bool {
	neg := repeatBool(true, n)
	neg[n-1] = false
	return neg
}

// noBreakPenalty charges every maximal busy run by its length. A run is
// bounded by a free neighbour on each side that exists.
func (c *compiler) noBreakPenalty() error {
	group := c.newGroup(GroupNoBreak)
	if c.opts.NoBreak.Empty() {
		return nil
	}
	for d := 0; d < timetable.DaysPerWeek; d++ {
		day := c.table.Workday[d]
		for i := range day {
			start := c.table.Slots[day[i]].Minute
			for j := i; j < len(day); j++ {
				minutes := c.table.Slots[day[j]].End() - start
				weight := c.opts.NoBreak.Weight(minutes, j-i+1)

				slots := make([]int, 0, j-i+3)
				var negated []bool
				if i > 0 {
					slots = append(slots, day[i-1])
					negated = append(negated, true)
				}
				slots = append(slots, day[i:j+1]...)
				negated = append(negated, repeatBool(false, j-i+1)...)
				if j < len(day)-1 {
					slots = append(slots, day[j+1])
					negated = append(negated, true)
				}
				c.addTerm(group, weight, timetable.InstructorIndex, slots, negated)
			}
		}
	}
	return nil
}

// dayOffBonus rewards leaving an entire workday free.
func (c *compiler) dayOffBonus() error {
	group := c.newGroup(GroupDayOff)
	for d := 0; d < timetable.DaysPerWeek; d++ {
		day := c.table.Workday[d]
		if len(day) == 0 {
			continue
		}
		weight := -c.opts.DayOffBonus * c.table.WorkdayMinutes(d)
		c.addTerm(group, weight, timetable.InstructorIndex, day, repeatBool(true, len(day)))
	}
	return nil
}
