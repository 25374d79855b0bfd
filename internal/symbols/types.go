package symbols

// Well-known built-in class names. The platform package declares them.
const (
	BuiltinsPackage = "lang"

	AnyName     FqName = "lang.Any"
	NothingName FqName = "lang.Nothing"
	UnitName    FqName = "lang.Unit"
)

// Type is a resolved type: either a class type or an error type. Types are
// comparable with ==.
type Type struct {
	Class *ClassDescriptor
	Err   string
}

// ErrorType is the type of expressions that could not be resolved. It is
// compatible with every other type so one error does not cascade.
func ErrorType(reason string) Type {
	if reason == "" {
		reason = "<error>"
	}
	return Type{Err: reason}
}

func (t Type) IsError() bool { return t.Class == nil }

// IsUnknown reports whether t was never set.
func (t Type) IsUnknown() bool { return t.Class == nil && t.Err == "" }

func (t Type) String() string {
	if t.Class != nil {
		return string(t.Class.FqName())
	}
	if t.Err != "" {
		return t.Err
	}
	return "<unknown>"
}

// IsSubtypeOf reports whether a value of type t may be used where other is
// expected.
func (t Type) IsSubtypeOf(other Type) bool {
	if t.IsError() || other.IsError() {
		return true
	}
	if other.Class.FqName() == AnyName || t.Class.FqName() == NothingName {
		return true
	}
	return t.Class.IsSubclassOf(other.Class)
}
