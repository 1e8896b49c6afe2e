package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"sjsage522/teetimeworker/helpers"
	"sjsage522/teetimeworker/logger"
	apperrors "sjsage522/teetimeworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoSlotTable is returned when a detail page has no time-slot table
var ErrNoSlotTable = errors.New("time slot table not found")

// Selectors contains CSS selectors and markers for the booking calendar markup
type Selectors struct {
	// Calendar selects every day cell
	Calendar string
	// CalendarTable limits onclick-based bookability to cells inside the calendar
	CalendarTable string
	// BookableMarker is the title text of reservable cells
	BookableMarker string
	// ClosedMarkers in a title mark a cell unbookable
	ClosedMarkers []string
	// UnbookableClasses on a cell mark it unbookable
	UnbookableClasses []string
	// SlotRows are tried in order; the first one that yields rows wins
	SlotRows []SlotSelector
}

// SlotSelector selects the rows of a time-slot table
type SlotSelector struct {
	Rows string
	// SkipHeader drops the first row of each table, for tables whose header uses td cells
	SkipHeader bool
}

// DefaultSelectors matches the Bear Creek reservation pages
var DefaultSelectors = Selectors{
	Calendar:          "td",
	CalendarTable:     "table.calendar",
	BookableMarker:    "예약가능",
	ClosedMarkers:     []string{"마감", "불가"},
	UnbookableClasses: []string{"red", "closed"},
	SlotRows: []SlotSelector{
		{Rows: "table.table-body tr"},
		{Rows: "table[class*='table'] tr", SkipHeader: true},
		{Rows: "div[class*='time-table'] table tr"},
		{Rows: "div[id*='timeTable'] table tr"},
	},
}

// Extractor parses calendar and time-slot markup into availability records
type Extractor struct {
	Selectors    Selectors
	DateMatchers []DateMatcher
	Policy       SlotPolicy
	log          *logger.Logger
}

// NewExtractor creates an extractor with the default selectors and date matchers
func NewExtractor(policy SlotPolicy) *Extractor {
	return &Extractor{
		Selectors:    DefaultSelectors,
		DateMatchers: DefaultDateMatchers,
		Policy:       policy,
		log:          logger.ForExtractor(),
	}
}

// logs falls back to the component logger for extractors built without NewExtractor
func (e *Extractor) logs() *logger.Logger {
	if e.log != nil {
		return e.log
	}
	return logger.ForExtractor()
}

// createDocument creates a goquery document from a reader
func createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, apperrors.NewParsing("extractor", "HTML 파싱 오류", err)
	}
	return doc, nil
}

// Cells returns every calendar cell of the page in document order
func (e *Extractor) Cells(r io.Reader) ([]CalendarCell, error) {
	doc, err := createDocument(r)
	if err != nil {
		return nil, err
	}

	var cells []CalendarCell
	doc.Find(e.Selectors.Calendar).Each(func(i int, s *goquery.Selection) {
		cells = append(cells, e.cell(s))
	})
	return cells, nil
}

func (e *Extractor) cell(s *goquery.Selection) CalendarCell {
	title := strings.TrimSpace(s.AttrOr("title", ""))

	label := title
	if label == "" {
		label = strings.TrimSpace(s.Text())
	}

	onclick := strings.TrimSpace(s.AttrOr("onclick", ""))
	if onclick == "" {
		onclick = strings.TrimSpace(s.Find("a").First().AttrOr("onclick", ""))
	}

	return CalendarCell{
		Label:    label,
		Bookable: e.isBookable(s, title, onclick),
		Token:    navigationToken(onclick),
	}
}

func (e *Extractor) isBookable(s *goquery.Selection, title, onclick string) bool {
	for _, class := range e.Selectors.UnbookableClasses {
		if s.HasClass(class) {
			return false
		}
	}
	for _, marker := range e.Selectors.ClosedMarkers {
		if strings.Contains(title, marker) {
			return false
		}
	}
	if e.Selectors.BookableMarker != "" && strings.Contains(title, e.Selectors.BookableMarker) {
		return true
	}
	return onclick != "" && s.Closest(e.Selectors.CalendarTable).Length() > 0
}

// navigationToken returns the first quoted argument of an onclick handler
func navigationToken(onclick string) string {
	for _, quote := range []string{"'", `"`} {
		if part, err := helpers.GetSplitPart(onclick, quote, 1); err == nil {
			return strings.TrimSpace(part)
		}
	}
	return ""
}

// FoundDate is a distinct bookable date together with the cell token that led to it
type FoundDate struct {
	Date  AvailableDate
	Token string
}

// ExtractDates returns the distinct bookable dates of a calendar page in discovery order
func (e *Extractor) ExtractDates(r io.Reader, rc RunContext) ([]FoundDate, error) {
	cells, err := e.Cells(r)
	if err != nil {
		return nil, err
	}
	return e.DatesFromCells(cells, rc), nil
}

// DatesFromCells runs the date matchers over bookable cells, skipping malformed ones
func (e *Extractor) DatesFromCells(cells []CalendarCell, rc RunContext) []FoundDate {
	found := make([]FoundDate, 0)
	seen := make(map[AvailableDate]bool)

	for _, cell := range cells {
		if !cell.Bookable {
			continue
		}

		date, matcher, err := MatchDate(cell.Label, rc, e.DateMatchers)
		if err != nil {
			e.logs().Warn().
				Err(apperrors.NewParsing("extractor", "calendar cell skipped", err)).
				Str("label", cell.Label).
				Msg("예약가능 셀 처리 중 오류")
			continue
		}

		if seen[date] {
			e.logs().Info().
				Str("date", date.String()).
				Str("matcher", matcher).
				Msg("duplicate available date")
			continue
		}
		seen[date] = true
		found = append(found, FoundDate{Date: date, Token: cell.Token})

		e.logs().Info().
			Str("date", date.String()).
			Str("matcher", matcher).
			Msg("예약 가능한 날짜 찾음")
	}

	return found
}

// ExtractSlots parses the time-slot table of a detail page
func (e *Extractor) ExtractSlots(r io.Reader) ([]TimeSlot, error) {
	doc, err := createDocument(r)
	if err != nil {
		return nil, err
	}

	var rows *goquery.Selection
	var selector SlotSelector
	for _, selector = range e.Selectors.SlotRows {
		rows = doc.Find(selector.Rows)
		if rows.Length() > 0 {
			break
		}
	}
	if rows == nil || rows.Length() == 0 {
		return nil, ErrNoSlotTable
	}

	slots := make([]TimeSlot, 0)
	rows.Each(func(i int, row *goquery.Selection) {
		if selector.SkipHeader && isFirstRow(row) {
			return
		}
		// Header rows never describe a slot
		if row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		slot := TimeSlot{
			Course: strings.TrimSpace(cells.Eq(0).Text()),
			Time:   strings.TrimSpace(cells.Eq(1).Text()),
			Price:  strings.TrimSpace(cells.Eq(3).Text()),
		}
		if slot.Course == "" || slot.Time == "" {
			return
		}
		slots = append(slots, slot)
	})

	return slots, nil
}

// isFirstRow reports whether row is the first tr of its table
func isFirstRow(row *goquery.Selection) bool {
	if row.PrevAll().Filter("tr").Length() > 0 {
		return false
	}
	// A tbody after a thead or another tbody is not the start of the table
	section := row.Parent()
	if goquery.NodeName(section) == "table" {
		return true
	}
	return section.PrevAll().Filter("thead, tbody").Find("tr").Length() == 0
}

// ConfirmSlots drills into every found date and applies the slot policy.
// The returned dates keep discovery order.
func (e *Extractor) ConfirmSlots(ctx context.Context, fetcher Fetcher, rc RunContext, found []FoundDate) ([]AvailableDate, map[AvailableDate][]TimeSlot) {
	dates := make([]AvailableDate, 0, len(found))
	slots := make(map[AvailableDate][]TimeSlot, len(found))
	log := e.logs().WithContext(ctx)

	for _, f := range found {
		if ctx.Err() != nil {
			break
		}

		daySlots, err := e.detailSlots(ctx, fetcher, rc, f)
		if err != nil || len(daySlots) == 0 {
			if err == nil {
				err = fmt.Errorf("no valid time slot rows")
			}
			if e.Policy == SlotPolicyStrict {
				log.Warn().Err(err).Str("date", f.Date.String()).Msg("시간 정보를 확인할 수 없어 제외")
				continue
			}
			log.Warn().Err(err).Str("date", f.Date.String()).Msg("시간 정보 없이 유지")
			daySlots = []TimeSlot{}
		}

		dates = append(dates, f.Date)
		slots[f.Date] = daySlots
		log.Info().Str("date", f.Date.String()).Int("slots", len(daySlots)).Msg("이용 가능 시간 확인")
	}

	return dates, slots
}

func (e *Extractor) detailSlots(ctx context.Context, fetcher Fetcher, rc RunContext, f FoundDate) ([]TimeSlot, error) {
	body, err := fetcher.FetchDetail(ctx, rc, f.Date, f.Token)
	if err != nil {
		return nil, err
	}
	return e.ExtractSlots(body)
}
