package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexFloat accepts numeric columns rendered either as JSON numbers or as
// strings, as Postgres numeric values sometimes are.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("expected number, got %s", string(b))
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("expected numeric string, got %q", s)
	}
	*f = flexFloat(n)
	return nil
}

type donorRow struct {
	TransactionEntityID int64      `json:"transaction_entity_id"`
	EntityName          string     `json:"entity_name"`
	TotalToRecipient    flexFloat  `json:"total_to_recipient"`
	DonationCount       int        `json:"donation_count"`
	BestMatch           *flexFloat `json:"best_match"`
	TopEmployer         string     `json:"top_employer"`
	TopOccupation       string     `json:"top_occupation"`
}

func (r donorRow) title() string {
	if name := strings.TrimSpace(r.EntityName); name != "" {
		return name
	}
	return fmt.Sprintf("Donor %d", r.TransactionEntityID)
}

func (r donorRow) summary() string {
	parts := []string{fmt.Sprintf("%s across %d donation(s)", formatAmount(float64(r.TotalToRecipient)), r.DonationCount)}
	if r.TopEmployer != "" {
		parts = append(parts, "employer: "+r.TopEmployer)
	}
	if r.TopOccupation != "" {
		parts = append(parts, "occupation: "+r.TopOccupation)
	}
	if r.BestMatch != nil {
		parts = append(parts, fmt.Sprintf("match %.3f", float64(*r.BestMatch)))
	}
	return strings.Join(parts, "; ")
}

type billRow struct {
	BillID       int64      `json:"bill_id"`
	BillNumber   string     `json:"bill_number"`
	SummaryTitle string     `json:"summary_title"`
	Score        *flexFloat `json:"score"`
	Vote         string     `json:"vote"`
	VoteDate     string     `json:"vote_date"`
}

func (r billRow) title() string {
	number := strings.TrimSpace(r.BillNumber)
	if number == "" {
		number = fmt.Sprintf("Bill %d", r.BillID)
	}
	if t := strings.TrimSpace(r.SummaryTitle); t != "" {
		return number + ": " + t
	}
	return number
}

func (r billRow) summary() string {
	var parts []string
	if r.Vote != "" {
		vote := "Voted " + r.Vote
		if r.VoteDate != "" {
			vote += " on " + r.VoteDate
		}
		parts = append(parts, vote)
	}
	if r.Score != nil {
		parts = append(parts, fmt.Sprintf("similarity %.3f", float64(*r.Score)))
	}
	return strings.Join(parts, "; ")
}

type rtsRow struct {
	PositionID   int64      `json:"position_id"`
	BillID       *int64     `json:"bill_id"`
	BillNumber   string     `json:"bill_number"`
	EntityName   string     `json:"entity_name"`
	Representing string     `json:"representing"`
	Position     string     `json:"position"`
	Comment      string     `json:"comment"`
	Similarity   *flexFloat `json:"similarity"`
}

func (r rtsRow) title() string {
	who := strings.TrimSpace(r.EntityName)
	if who == "" {
		who = strings.TrimSpace(r.Representing)
	}
	if who == "" {
		who = fmt.Sprintf("Position %d", r.PositionID)
	}
	if r.BillNumber != "" {
		return who + " on " + r.BillNumber
	}
	return who
}

func (r rtsRow) summary() string {
	var parts []string
	if r.Position != "" {
		parts = append(parts, r.Position)
	}
	if r.Representing != "" && r.Representing != r.EntityName {
		parts = append(parts, "representing "+r.Representing)
	}
	if c := strings.TrimSpace(r.Comment); c != "" {
		parts = append(parts, truncate(c, 200))
	}
	if r.Similarity != nil {
		parts = append(parts, fmt.Sprintf("similarity %.3f", float64(*r.Similarity)))
	}
	return strings.Join(parts, "; ")
}

func formatAmount(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, frac := whole[:len(whole)-3], whole[len(whole)-3:]
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := "$" + b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
