package store

import (
	"fmt"
	"strings"
)

// ClauseKind selects how a Clause is rendered.
type ClauseKind int

const (
	// Between matches Column BETWEEN Args[0] AND Args[1], inclusive.
	Between ClauseKind = iota
	// AtLeast matches Column >= Args[0].
	AtLeast
	// AtMost matches Column <= Args[0].
	AtMost
	// Contains matches rows whose Column text contains Args[0] anywhere.
	Contains
)

// Column names accepted in clauses.
const (
	ColDateTime     = "date_time"
	ColPH           = "ph"
	ColContaminants = "contaminants"
)

// Clause is one typed condition. Values travel as bound arguments only.
type Clause struct {
	Kind   ClauseKind
	Column string
	Args   []any
}

// Predicate is an ordered AND of clauses. The zero value matches every row.
type Predicate struct {
	Clauses []Clause
}

// And appends a clause, keeping insertion order.
func (p Predicate) And(c Clause) Predicate {
	p.Clauses = append(append([]Clause{}, p.Clauses...), c)
	return p
}

// Args returns the bound arguments in clause order.
func (p Predicate) Args() []any {
	var args []any
	for _, c := range p.Clauses {
		if c.Kind == Contains && len(c.Args) == 1 {
			args = append(args, "%"+escapeLike(fmt.Sprint(c.Args[0]))+"%")
			continue
		}
		args = append(args, c.Args...)
	}
	return args
}

// where renders the WHERE body with ? placeholders. Contains uses likeOp.
func (p Predicate) where(likeOp string) (string, error) {
	parts := make([]string, 0, len(p.Clauses))
	for _, c := range p.Clauses {
		if !knownColumn(c.Column) {
			return "", fmt.Errorf("unknown column %q", c.Column)
		}
		switch c.Kind {
		case Between:
			if len(c.Args) != 2 {
				return "", fmt.Errorf("%s BETWEEN needs 2 args, got %d", c.Column, len(c.Args))
			}
			parts = append(parts, c.Column+" BETWEEN ? AND ?")
		case AtLeast, AtMost, Contains:
			if len(c.Args) != 1 {
				return "", fmt.Errorf("%s clause needs 1 arg, got %d", c.Column, len(c.Args))
			}
			switch c.Kind {
			case AtLeast:
				parts = append(parts, c.Column+" >= ?")
			case AtMost:
				parts = append(parts, c.Column+" <= ?")
			default:
				parts = append(parts, c.Column+" "+likeOp+` ? ESCAPE '\'`)
			}
		default:
			return "", fmt.Errorf("unknown clause kind %d", c.Kind)
		}
	}
	return strings.Join(parts, " AND "), nil
}

func knownColumn(col string) bool {
	switch col {
	case ColDateTime, ColPH, ColContaminants:
		return true
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// buildScanQuery renders the full SELECT for a predicate in the given dialect.
func buildScanQuery(p Predicate, dialect string) (string, []any, error) {
	likeOp := "LIKE"
	if dialect == "postgres" {
		likeOp = "ILIKE"
	}
	where, err := p.where(likeOp)
	if err != nil {
		return "", nil, err
	}

	q := `SELECT ` + columns + ` FROM water_quality_observations`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY id`

	if dialect == "postgres" {
		q = replacePlaceholders(q)
	}
	return q, p.Args(), nil
}

const columns = `id, latitude, longitude, date_time, description, ph, conductivity, "do", contaminants`

// replacePlaceholders converts ? to $1, $2, $3 etc for postgres.
func replacePlaceholders(query string) string {
	result := make([]byte, 0, len(query))
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, fmt.Sprintf("$%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
