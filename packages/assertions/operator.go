package assertions

import (
	"fmt"
	"sort"
)

// Operator is the comparison an assertion applies.
type Operator int

const (
	OpEquals Operator = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpMatches
	OpExists
	OpNotExists
	OpLength
	OpIncludes
	OpNotIncludes
	OpIn
	OpNotIn
	OpType
	OpSchema
	OpEach
	OpSnapshot
)

var operatorNames = [...]string{
	OpEquals:         "equals",
	OpNotEquals:      "notEquals",
	OpGreaterThan:    ">",
	OpGreaterOrEqual: ">=",
	OpLessThan:       "<",
	OpLessOrEqual:    "<=",
	OpContains:       "contains",
	OpNotContains:    "notContains",
	OpStartsWith:     "startsWith",
	OpEndsWith:       "endsWith",
	OpMatches:        "matches",
	OpExists:         "exists",
	OpNotExists:      "notExists",
	OpLength:         "length",
	OpIncludes:       "includes",
	OpNotIncludes:    "notIncludes",
	OpIn:             "in",
	OpNotIn:          "notIn",
	OpType:           "type",
	OpSchema:         "schema",
	OpEach:           "each",
	OpSnapshot:       "snapshot",
}

// aliases are accepted by ParseOperator besides the canonical names.
var aliases = map[string]Operator{
	"==": OpEquals,
	"!=": OpNotEquals,
	"gt": OpGreaterThan,
	"ge": OpGreaterOrEqual,
	"lt": OpLessThan,
	"le": OpLessOrEqual,
}

func (o Operator) String() string {
	if o >= 0 && int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// negated maps each negative operator to the operator it inverts.
var negated = map[Operator]Operator{
	OpNotEquals:   OpEquals,
	OpNotContains: OpContains,
	OpNotExists:   OpExists,
	OpNotIncludes: OpIncludes,
	OpNotIn:       OpIn,
}

// ParseOperator accepts an operator name or alias.
func ParseOperator(s string) (Operator, error) {
	for op, name := range operatorNames {
		if name == s {
			return Operator(op), nil
		}
	}
	if op, ok := aliases[s]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// OperatorNames lists the canonical operator names, sorted.
func OperatorNames() []string {
	names := append([]string(nil), operatorNames[:]...)
	sort.Strings(names)
	return names
}
