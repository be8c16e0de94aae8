package schema

// Args are validated, normalized arguments. Integers are int, numbers are
// float64, arrays of primitives are typed slices and nested objects are Args.
// A key that is present with a nil value was an explicit null.
type Args map[string]any

// Has reports whether name was supplied or defaulted, including explicit null.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// IsNull reports whether name is absent or null.
func (a Args) IsNull(name string) bool {
	return a[name] == nil
}

// Value returns the raw normalized value, or nil when absent or null.
func (a Args) Value(name string) any {
	return a[name]
}

func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

// IntPtr returns nil when name is absent or null.
func (a Args) IntPtr(name string) *int {
	n, ok := a[name].(int)
	if !ok {
		return nil
	}
	return &n
}

func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

func (a Args) Ints(name string) []int {
	v, _ := a[name].([]int)
	return v
}

func (a Args) Floats(name string) []float64 {
	v, _ := a[name].([]float64)
	return v
}

func (a Args) Strings(name string) []string {
	v, _ := a[name].([]string)
	return v
}

func (a Args) Values(name string) []any {
	v, _ := a[name].([]any)
	return v
}

func (a Args) Object(name string) Args {
	v, _ := a[name].(Args)
	return v
}
