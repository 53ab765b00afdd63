package validation

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "enrollment/pkg/domain-errors"
)

type address struct {
	PinCode string `json:"pin_code" validate:"required,pincode"`
}

type contact struct {
	Contact string `json:"contact" validate:"required,phone"`
}

type sample struct {
	IdentityNumber string    `json:"identity_number" validate:"identity12"`
	FullName       string    `json:"full_name" validate:"notblank,max=120"`
	Email          string    `json:"email,omitempty" validate:"omitempty,email"`
	Address        address   `json:"address"`
	References     []contact `json:"references" validate:"max=2,dive"`
}

// ValidationSuite covers the trust-boundary validator.
type ValidationSuite struct {
	suite.Suite
}

func TestValidationSuite(t *testing.T) {
	suite.Run(t, new(ValidationSuite))
}

func (s *ValidationSuite) valid() sample {
	return sample{
		IdentityNumber: "123456789012",
		FullName:       "Asha Devi",
		Address:        address{PinCode: "560001"},
		References:     []contact{{Contact: "+919876543210"}},
	}
}

func (s *ValidationSuite) TestAcceptsValidInput() {
	s.NoError(Validate(s.valid()))
}

func (s *ValidationSuite) TestIdentityNumber() {
	for _, bad := range []string{"", "12345678901", "1234567890123", "12345678901a"} {
		in := s.valid()
		in.IdentityNumber = bad
		err := Validate(in)
		s.Require().Error(err, bad)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal([]dErrors.FieldError{{Field: "identity_number", Reason: "must be exactly 12 digits"}}, dErrors.FieldsOf(err))
	}
}

func (s *ValidationSuite) TestReportsEveryFieldWithJSONPaths() {
	in := s.valid()
	in.FullName = "   "
	in.Address.PinCode = "012345"
	in.References = []contact{{Contact: "+919876543210"}, {Contact: "call me"}}

	err := Validate(in)
	s.Require().Error(err)

	fields := dErrors.FieldsOf(err)
	s.Require().Len(fields, 3)
	s.Equal("full_name", fields[0].Field)
	s.Equal("address.pin_code", fields[1].Field)
	s.Equal("references[1].contact", fields[2].Field)
	s.Equal("must be a valid phone number", fields[2].Reason)
	s.Contains(err.Error(), "(and 2 more)")
}

func (s *ValidationSuite) TestLimits() {
	s.NoError(CheckSliceCount("references", MaxReferences, MaxReferences))
	err := CheckSliceCount("references", MaxReferences+1, MaxReferences)
	s.Require().Error(err)
	s.Equal("references", dErrors.FieldsOf(err)[0].Field)

	s.Error(CheckStringLength("name", "abcdef", 5))
	s.Equal(50, ClampPageSize(0, 50))
	s.Equal(MaxPageSize, ClampPageSize(10_000, 50))
	s.Equal(7, ClampPageSize(7, 50))
}
