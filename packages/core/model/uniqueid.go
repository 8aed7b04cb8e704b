package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"strconv"
)

// idGenerator hashes a sequence of identity parts. Parts are separated by a
// NUL byte so ("ab","c") and ("a","bc") differ.
type idGenerator struct {
	h hash.Hash
}

func newIDGenerator() *idGenerator {
	return &idGenerator{h: sha256.New()}
}

func (g *idGenerator) add(parts ...string) *idGenerator {
	for _, p := range parts {
		g.h.Write([]byte(p))
		g.h.Write([]byte{0})
	}
	return g
}

func (g *idGenerator) compute() string {
	return hex.EncodeToString(g.h.Sum(nil))
}

// AssemblyID derives the ID of an assembly from its path and configuration file.
func AssemblyID(assemblyPath, configPath string) string {
	return newIDGenerator().add(assemblyPath, configPath).compute()
}

// CollectionID derives a collection ID from its assembly and display name.
func CollectionID(assemblyID, displayName, definitionName string) string {
	return newIDGenerator().add(assemblyID, displayName, definitionName).compute()
}

// ClassID derives a class ID from its collection and class name.
func ClassID(collectionID, className string) string {
	return newIDGenerator().add(collectionID, className).compute()
}

// MethodID derives a method ID from its class and method name.
func MethodID(classID, methodName string) string {
	return newIDGenerator().add(classID, methodName).compute()
}

// TestCaseID derives a test case ID from its method and the identity of its
// arguments.
func TestCaseID(methodID string, argIdentity ...string) string {
	return newIDGenerator().add(methodID).add(argIdentity...).compute()
}

// TestID derives the ID of the index'th test produced by a test case.
func TestID(testCaseID string, index int) string {
	return newIDGenerator().add(testCaseID, strconv.Itoa(index)).compute()
}

// Identifier is implemented by test case arguments that name their own
// identity, such as handles whose state cannot be serialized.
type Identifier interface {
	Identity() string
}

// ArgIdentity renders a test case argument for its case ID. Only the type and
// the serialized value count, never an address, so the same argument yields
// the same ID in every process. Values that cannot be serialized contribute
// their type alone.
func ArgIdentity(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "nil"
	case Identifier:
		return fmt.Sprintf("%T:%s", v, v.Identity())
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return fmt.Sprintf("%T", arg)
	}
	return fmt.Sprintf("%T:%s", arg, data)
}
