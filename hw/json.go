package hw

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes m as [value, unit, name].
func (m Magnification) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Value, m.Unit, m.Name})
}

// UnmarshalJSON decodes [value, unit, name].
func (m *Magnification) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("magnification needs 3 elements, got %d", len(parts))
	}

	if err := json.Unmarshal(parts[0], &m.Value); err != nil {
		return fmt.Errorf("magnification value: %w", err)
	}
	if err := json.Unmarshal(parts[1], &m.Unit); err != nil {
		return fmt.Errorf("magnification unit: %w", err)
	}
	if err := json.Unmarshal(parts[2], &m.Name); err != nil {
		return fmt.Errorf("magnification name: %w", err)
	}

	return nil
}

// MarshalJSON encodes f as [index, name].
func (f FunctionMode) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Index, f.Name})
}

// UnmarshalJSON decodes [index, name].
func (f *FunctionMode) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("function mode needs 2 elements, got %d", len(parts))
	}

	if err := json.Unmarshal(parts[0], &f.Index); err != nil {
		return fmt.Errorf("function mode index: %w", err)
	}
	if err := json.Unmarshal(parts[1], &f.Name); err != nil {
		return fmt.Errorf("function mode name: %w", err)
	}

	return nil
}
