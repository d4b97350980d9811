package config

// SecretStringValue replaces secret values in any output.
const SecretStringValue = "<secret>"

// SecretString is used for fields that should never be visible in logs,
// reports or dumped configuration.
type SecretString string

// String hides the value from fmt and zap.Stringer.
func (s SecretString) String() string {
	if len(s) == 0 {
		return ""
	}
	return SecretStringValue
}

// Value returns actual secret.
func (s SecretString) Value() string {
	return string(s)
}

// MarshalJSON marshals SecretString to JSON making sure that actual value is not visible.
func (s SecretString) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte("\"" + SecretStringValue + "\""), nil
}

// MarshalYAML marshals SecretString to YAML making sure that actual value is not visible.
func (s SecretString) MarshalYAML() (any, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return SecretStringValue, nil
}
