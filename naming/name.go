package naming

import (
	"errors"
	"strconv"
	"strings"
)

// A Name is a hierarchical name that includes a series of tokens separated
// by dots.
type Name struct {
	Tokens []Token
}

// Token is one dot-separated element of a name.
type Token struct {
	ElemName string
	Index    []int
}

// Parse parses a name string. It returns an error if square brackets do not
// match or if an index is not an integer.
func Parse(sname string) (Name, error) {
	tokens := strings.Split(sname, ".")
	name := Name{Tokens: make([]Token, len(tokens))}

	for i, token := range tokens {
		t, err := parseToken(token)
		if err != nil {
			return Name{}, err
		}

		name.Tokens[i] = t
	}

	return name, nil
}

func parseToken(token string) (Token, error) {
	if err := bracketsMustMatch(token); err != nil {
		return Token{}, err
	}

	ts := strings.Split(token, "[")
	elemName := ts[0]

	indices := make([]int, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		index, err := strconv.Atoi(ts[i][0 : len(ts[i])-1])
		if err != nil {
			return Token{}, errors.New("name index must be integer")
		}

		indices[i-1] = index
	}

	return Token{ElemName: elemName, Index: indices}, nil
}

func bracketsMustMatch(name string) error {
	open := 0
	for _, c := range name {
		if c == '[' {
			open++
		} else if c == ']' {
			open--
			if open < 0 {
				return errors.New("name brackets must match")
			}
		}
	}

	if open != 0 {
		return errors.New("name brackets must match")
	}

	return nil
}

// Validate reports whether the name follows the naming convention.
//  1. It is organized hierarchically, "A.B.C" is valid, "A.B.C." is not.
//  2. Individual elements are not empty.
//  3. Elements are capitalized CamelCase.
//  4. Elements in a series use square-bracket notation, "Input[3]".
func Validate(name string) error {
	n, err := Parse(name)
	if err != nil {
		return errors.New("name " + name + " is not valid: " + err.Error())
	}

	for _, token := range n.Tokens {
		if err := tokenMustBeValid(token); err != nil {
			return errors.New("name " + name + " is not valid: " + err.Error())
		}
	}

	return nil
}

// MustBeValid panics if the name does not follow the naming convention.
func MustBeValid(name string) {
	if err := Validate(name); err != nil {
		panic(err.Error())
	}
}

func tokenMustBeValid(token Token) error {
	if token.ElemName == "" {
		return errors.New("name element must not be empty")
	}

	for _, c := range []string{"_", "\"", "'", "-", " "} {
		if strings.Contains(token.ElemName, c) {
			return errors.New("name element must not contain " + c)
		}
	}

	if token.ElemName[0] < 'A' || token.ElemName[0] > 'Z' {
		return errors.New("name element must start with a capital letter")
	}

	return nil
}

// Build builds a name from a parent name and an element name.
func Build(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildWithIndex builds a name from a parent name, an element name and an
// index.
func BuildWithIndex(parentName, elementName string, index int) string {
	return Build(parentName, elementName+"["+strconv.Itoa(index)+"]")
}
