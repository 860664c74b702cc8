// Package demo is a reference Schema implementation matching the original
// reference source's hard-coded record layout: a 20-byte name, a 4-byte
// age, and 4-byte gender/department enum codes, for a fixed 32-byte
// record. It is deliberately NOT part of the core engine package — a
// caller-supplied example of what implements engine.Schema, the same way
// the original ships one concrete table layout alongside its reusable
// index manager.
package demo

import (
	"encoding/binary"
	"strconv"

	"github.com/pkg/errors"
)

const (
	nameOffset, nameLen       = 0, 20
	ageOffset, ageLen         = 20, 4
	genderOffset, genderLen   = 24, 4
	departmentOffset, deptLen = 28, 4

	// RecordSize is the fixed size in bytes of one demo record.
	RecordSize = nameOffset + nameLen + ageLen + genderLen + deptLen
)

// NullAge is the sentinel age value meaning "no age recorded".
const NullAge int32 = -1

// Gender codes, matching the original's Gender enum ordering.
const (
	GenderNull int32 = iota
	GenderMale
	GenderFemale
)

var genderCodes = map[string]int32{
	"":       GenderNull,
	"MALE":   GenderMale,
	"FEMALE": GenderFemale,
}

// Department codes, matching the original's Department enum ordering.
const (
	DepartmentNull int32 = iota
	DepartmentComputerScience
	DepartmentPhysics
	DepartmentChemistry
	DepartmentForeignLang
)

var departmentCodes = map[string]int32{
	"":                  DepartmentNull,
	"COMPUTER_SCIENCE":  DepartmentComputerScience,
	"PHYSICS":           DepartmentPhysics,
	"CHEMISTRY":         DepartmentChemistry,
	"FOREIGN_LANG":      DepartmentForeignLang,
}

// UnknownAttribute is returned by PutAttribute for any attribute name
// outside {name, age, gender, department}.
var UnknownAttribute = errors.New("demo: unknown attribute")

// UnknownEnumValue is returned by PutAttribute when a gender/department
// value isn't one of the recognized tokens. The original source instead
// fell through an `else if ("Chemistry")`-style truthy-string check that
// silently matched any non-empty, unrecognized value as CHEMISTRY; this
// implementation rejects it instead.
var UnknownEnumValue = errors.New("demo: unrecognized enum value")

// Record is the reference engine.Schema implementation: a person's name,
// age, gender and department, laid out as a fixed 32-byte record.
type Record struct{}

// RecordSize implements engine.Schema.
func (Record) RecordSize() int { return RecordSize }

// PutAttribute implements engine.Schema.
func (Record) PutAttribute(record []byte, name, value string) error {
	switch name {
	case "name":
		putName(record, value)
		return nil
	case "age":
		return putAge(record, value)
	case "gender":
		return putEnum(record, genderOffset, genderCodes, value)
	case "department":
		return putEnum(record, departmentOffset, departmentCodes, value)
	default:
		return errors.Wrapf(UnknownAttribute, "%q", name)
	}
}

func putName(record []byte, value string) {
	var field [nameLen]byte
	copy(field[:], value)
	copy(record[nameOffset:nameOffset+nameLen], field[:])
}

func putAge(record []byte, value string) error {
	age := NullAge
	if value != "" {
		parsed, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "demo: invalid age %q", value)
		}
		age = int32(parsed)
	}
	binary.LittleEndian.PutUint32(record[ageOffset:ageOffset+ageLen], uint32(age))
	return nil
}

func putEnum(record []byte, offset int, codes map[string]int32, value string) error {
	code, ok := codes[value]
	if !ok {
		return errors.Wrapf(UnknownEnumValue, "%q", value)
	}
	binary.LittleEndian.PutUint32(record[offset:offset+4], uint32(code))
	return nil
}
