package timetable

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

var (
	slotHeaderPattern   = regexp.MustCompile(`^\s*([MTWRFSU])\s*(\d+):(\d+)$`)
	lessonLengthPattern = regexp.MustCompile(`^(.*)\[\s*(\d+)\s*min\s*\]\s*(.*)$`)
	lessonCountPattern  = regexp.MustCompile(`^(.*)\[\s*x\s*(\d+)\s*\]\s*(.*)$`)
	restrictionPattern  = regexp.MustCompile(`^([^_]+)_(\d+)$`)
)

// ParseOptions tunes table interpretation.
type ParseOptions struct {
	// DefaultLessonLength overrides the 30 minute default for unmarked pupils.
	DefaultLessonLength int
}

// Load parses records and derives occlusion and workday indexes.
func Load(records [][]string, opts ParseOptions) (*Table, error) {
	table, err := Parse(records, opts)
	if err != nil {
		return nil, err
	}
	table.computeOcclusion()
	if err := table.computeWorkdays(); err != nil {
		return nil, err
	}
	return table, nil
}

// Parse builds slots, people and restrictions without derived indexes.
func Parse(records [][]string, opts ParseOptions) (*Table, error) {
	defaultLength := opts.DefaultLessonLength
	if defaultLength <= 0 {
		defaultLength = DefaultLessonLength
	}

	table := &Table{}
	restrictionIndex := make(map[string]int)
	headerSeen := false

	for _, row := range ClassifyRows(records) {
		if row.Kind != RowHeader && !headerSeen {
			return nil, appErrors.Newf(appErrors.ErrFormat, "line %d: the first row must start with %q", row.Line, LabelHeader)
		}
		if row.Kind != RowHeader && len(row.Cells) != len(table.Slots) {
			return nil, appErrors.Newf(appErrors.ErrFormat, "line %d: row has %d slots, header has %d", row.Line, len(row.Cells), len(table.Slots))
		}

		switch row.Kind {
		case RowHeader:
			if headerSeen {
				return nil, appErrors.Newf(appErrors.ErrFormat, "line %d: duplicate %q row", row.Line, LabelHeader)
			}
			slots, err := parseHeader(row)
			if err != nil {
				return nil, err
			}
			table.Slots = slots
			headerSeen = true
		case RowInstructor:
			if len(table.People) > 0 {
				return nil, appErrors.Newf(appErrors.ErrFormat, "line %d: duplicate %q row", row.Line, LabelInstructor)
			}
			table.People = append(table.People, Person{
				Index:      InstructorIndex,
				Name:       row.Label,
				Preference: parsePreferences(row.Cells),
			})
		case RowRestrictions:
			if err := table.parseRestrictions(row, restrictionIndex); err != nil {
				return nil, err
			}
		case RowPupil:
			if len(table.People) == 0 {
				return nil, appErrors.Newf(appErrors.ErrFormat, "line %d: pupil %q appears before the %q row", row.Line, row.Label, LabelInstructor)
			}
			pupil, err := parsePupil(row, defaultLength)
			if err != nil {
				return nil, err
			}
			pupil.Index = len(table.People)
			table.People = append(table.People, pupil)
		}
	}

	if !headerSeen {
		return nil, appErrors.Newf(appErrors.ErrFormat, "missing %q row", LabelHeader)
	}
	if len(table.Slots) == 0 {
		return nil, appErrors.Newf(appErrors.ErrFormat, "%q row lists no slots", LabelHeader)
	}
	if len(table.People) == 0 {
		return nil, appErrors.Newf(appErrors.ErrFormat, "missing %q row", LabelInstructor)
	}
	return table, nil
}

func parseHeader(row Row) ([]Slot, error) {
	slots := make([]Slot, len(row.Cells))
	for i, cell := range row.Cells {
		m := slotHeaderPattern.FindStringSubmatch(cell)
		if m == nil {
			return nil, appErrors.Newf(appErrors.ErrFormat, "slot %q does not match the <day><H:MM> pattern", cell)
		}
		day, _ := DayIndex(m[1])
		hour, _ := strconv.Atoi(m[2])
		minute, _ := strconv.Atoi(m[3])
		if hour < 0 || hour >= 24 {
			return nil, appErrors.Newf(appErrors.ErrFormat, "slot %q: hour out of range", cell)
		}
		if minute < 0 || minute >= 60 {
			return nil, appErrors.Newf(appErrors.ErrFormat, "slot %q: minute out of range", cell)
		}
		slots[i] = Slot{Index: i, Name: cell, Day: day, Minute: hour*60 + minute}

		if i == 0 {
			continue
		}
		prev := &slots[i-1]
		elapsed := (day*MinutesPerDay + slots[i].Minute) - (prev.Day*MinutesPerDay + prev.Minute)
		if elapsed <= 0 {
			return nil, appErrors.Newf(appErrors.ErrFormat, "slot %q is not after %q", cell, prev.Name)
		}
		if prev.Day == day {
			prev.Duration = elapsed
		}
	}

	// The last slot of each day repeats the previous gap of that day.
	for i := range slots {
		if slots[i].Duration != 0 {
			continue
		}
		slots[i].Duration = DefaultLastSlotDuration
		if i > 0 && slots[i-1].Day == slots[i].Day {
			slots[i].Duration = slots[i-1].Duration
		}
	}
	return slots, nil
}

func parsePreferences(cells []string) []int {
	prefs := make([]int, len(cells))
	for i, cell := range cells {
		switch {
		case cell == "x" || cell == "X":
			prefs[i] = PreferenceForcedBusy
		case isDigits(cell):
			v, err := strconv.Atoi(cell)
			if err == nil {
				prefs[i] = v
			}
		}
	}
	return prefs
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func parsePupil(row Row, defaultLength int) (Person, error) {
	name := row.Label
	length := defaultLength
	count := 1

	if m := lessonLengthPattern.FindStringSubmatch(name); m != nil {
		length, _ = strconv.Atoi(m[2])
		name = strings.TrimSpace(m[1] + m[3])
	}
	if m := lessonCountPattern.FindStringSubmatch(name); m != nil {
		count, _ = strconv.Atoi(m[2])
		name = strings.TrimSpace(m[1] + m[3])
	}
	if length <= 0 {
		return Person{}, appErrors.Newf(appErrors.ErrFormat, "pupil %q: lesson length must be positive", row.Label)
	}
	if count <= 0 {
		return Person{}, appErrors.Newf(appErrors.ErrFormat, "pupil %q: lesson count must be positive", row.Label)
	}

	return Person{
		Name:         name,
		LessonLength: length,
		LessonCount:  count,
		Preference:   parsePreferences(row.Cells),
	}, nil
}

func (t *Table) parseRestrictions(row Row, index map[string]int) error {
	for slot, cell := range row.Cells {
		if cell == "" {
			continue
		}
		for _, token := range strings.Split(cell, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			m := restrictionPattern.FindStringSubmatch(token)
			if m == nil {
				return appErrors.Newf(appErrors.ErrFormat, "restriction %q in slot %q is not <name>_<count>", token, t.Slots[slot].Name)
			}
			name := m[1]
			count, _ := strconv.Atoi(m[2])
			if i, ok := index[name]; ok {
				if t.Restrictions[i].MinFree != count {
					return appErrors.Newf(appErrors.ErrConfig, "restriction %q: free count %d does not match earlier %d", name, count, t.Restrictions[i].MinFree)
				}
				t.Restrictions[i].Slots = append(t.Restrictions[i].Slots, slot)
				continue
			}
			index[name] = len(t.Restrictions)
			t.Restrictions = append(t.Restrictions, Restriction{Name: name, MinFree: count, Slots: []int{slot}})
		}
	}
	return nil
}
