package model

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// TestCaseOrderer decides the execution order of the cases of one class.
type TestCaseOrderer interface {
	OrderTestCases(cases []*TestCase) ([]*TestCase, error)
}

// ClassOrderer decides the execution order of the classes of a collection.
type ClassOrderer interface {
	OrderClasses(classes []*Class) ([]*Class, error)
}

// CollectionOrderer decides the order collections are dispatched in.
type CollectionOrderer interface {
	OrderCollections(collections []*Collection) ([]*Collection, error)
}

// TestCaseOrdererFunc adapts a function to TestCaseOrderer.
type TestCaseOrdererFunc func(cases []*TestCase) ([]*TestCase, error)

func (f TestCaseOrdererFunc) OrderTestCases(cases []*TestCase) ([]*TestCase, error) {
	return f(cases)
}

// DefaultTestCaseOrderer orders cases by unique ID, which is stable across
// runs but not tied to declaration order.
type DefaultTestCaseOrderer struct{}

func (DefaultTestCaseOrderer) OrderTestCases(cases []*TestCase) ([]*TestCase, error) {
	out := append([]*TestCase(nil), cases...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out, nil
}

// DisplayNameOrderer orders cases alphabetically by display name.
type DisplayNameOrderer struct{}

func (DisplayNameOrderer) OrderTestCases(cases []*TestCase) ([]*TestCase, error) {
	out := append([]*TestCase(nil), cases...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// DeclarationOrderer keeps cases in the order discovery produced them.
type DeclarationOrderer struct{}

func (DeclarationOrderer) OrderTestCases(cases []*TestCase) ([]*TestCase, error) {
	return append([]*TestCase(nil), cases...), nil
}

// RandomOrderer shuffles cases with a fixed seed so a run can be replayed.
type RandomOrderer struct {
	Seed int64
}

func (o RandomOrderer) OrderTestCases(cases []*TestCase) ([]*TestCase, error) {
	out, err := DefaultTestCaseOrderer{}.OrderTestCases(cases)
	if err != nil {
		return nil, err
	}
	r := rand.New(rand.NewSource(o.Seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

// DefaultClassOrderer keeps declaration order.
type DefaultClassOrderer struct{}

func (DefaultClassOrderer) OrderClasses(classes []*Class) ([]*Class, error) {
	return append([]*Class(nil), classes...), nil
}

// DefaultCollectionOrderer orders collections by display name.
type DefaultCollectionOrderer struct{}

func (DefaultCollectionOrderer) OrderCollections(collections []*Collection) ([]*Collection, error) {
	out := append([]*Collection(nil), collections...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// ParseTestCaseOrderer returns the orderer registered under name: default,
// displayName, declaration or random. A nil seed seeds random ordering from
// the clock.
func ParseTestCaseOrderer(name string, seed *int64) (TestCaseOrderer, error) {
	switch name {
	case "", "default":
		return DefaultTestCaseOrderer{}, nil
	case "displayName":
		return DisplayNameOrderer{}, nil
	case "declaration":
		return DeclarationOrderer{}, nil
	case "random":
		s := time.Now().UnixNano()
		if seed != nil {
			s = *seed
		}
		return RandomOrderer{Seed: s}, nil
	}
	return nil, fmt.Errorf("invalid order %q (expected default, displayName, declaration or random)", name)
}
