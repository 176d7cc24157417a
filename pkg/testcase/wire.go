package testcase

import (
	"encoding/json"
	"fmt"
)

type wireOperation struct {
	Kind      string          `json:"kind"`
	Result    *Reference      `json:"result,omitempty"`
	Receiver  *Reference      `json:"receiver,omitempty"`
	Class     string          `json:"class,omitempty"`
	Name      string          `json:"name,omitempty"`
	Args      []Reference     `json:"args,omitempty"`
	ValueType string          `json:"valueType,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
}

type wireTest struct {
	Operations []wireOperation `json:"operations"`
	Slots      map[string]int  `json:"slots"`
}

// MarshalJSON encodes the test for transport to a remote worker.
func (t *Test) MarshalJSON() ([]byte, error) {
	w := wireTest{
		Operations: make([]wireOperation, len(t.ops)),
		Slots:      t.slots,
	}
	for i, op := range t.ops {
		wo, err := encodeOperation(op)
		if err != nil {
			return nil, fmt.Errorf("failed to encode operation %d - %v", i, err)
		}
		w.Operations[i] = wo
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a test encoded by MarshalJSON.
func (t *Test) UnmarshalJSON(b []byte) error {
	var w wireTest
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ops := make([]Operation, len(w.Operations))
	for i, wo := range w.Operations {
		op, err := decodeOperation(wo)
		if err != nil {
			return fmt.Errorf("failed to decode operation %d - %v", i, err)
		}
		ops[i] = op
	}
	*t = *New(ops, w.Slots)
	return nil
}

func encodeOperation(op Operation) (wireOperation, error) {
	switch o := cloneOperation(op).(type) {
	case CreateObject:
		return wireOperation{Kind: o.Kind().String(), Result: o.Result, Class: o.Class, Name: o.Constructor, Args: o.Args}, nil
	case Invoke:
		return wireOperation{Kind: o.Kind().String(), Result: o.Result, Receiver: o.Receiver, Class: o.Class, Name: o.Method, Args: o.Args}, nil
	case AssignConstant:
		raw, err := json.Marshal(o.Value)
		if err != nil {
			return wireOperation{}, err
		}
		result := o.Result
		return wireOperation{Kind: o.Kind().String(), Result: &result, ValueType: fmt.Sprintf("%T", o.Value), Value: raw}, nil
	case ResetRepository:
		return wireOperation{Kind: o.Kind().String()}, nil
	}
	return wireOperation{}, fmt.Errorf("unknown operation type %T", op)
}

func decodeOperation(w wireOperation) (Operation, error) {
	switch w.Kind {
	case CreateObjectKind.String():
		return CreateObject{Result: w.Result, Class: w.Class, Constructor: w.Name, Args: w.Args}, nil
	case InvokeKind.String():
		return Invoke{Result: w.Result, Receiver: w.Receiver, Class: w.Class, Method: w.Name, Args: w.Args}, nil
	case AssignConstantKind.String():
		if w.Result == nil {
			return nil, fmt.Errorf("assignment without a target")
		}
		value, err := decodeConstant(w.ValueType, w.Value)
		if err != nil {
			return nil, err
		}
		return AssignConstant{Result: *w.Result, Value: value}, nil
	case ResetRepositoryKind.String():
		return ResetRepository{}, nil
	}
	return nil, fmt.Errorf("unknown operation kind %q", w.Kind)
}

func decodeConstant(valueType string, raw json.RawMessage) (any, error) {
	var err error
	switch valueType {
	case "int":
		var v int
		err = json.Unmarshal(raw, &v)
		return v, err
	case "int64":
		var v int64
		err = json.Unmarshal(raw, &v)
		return v, err
	case "bool":
		var v bool
		err = json.Unmarshal(raw, &v)
		return v, err
	case "string":
		var v string
		err = json.Unmarshal(raw, &v)
		return v, err
	case "float64":
		var v float64
		err = json.Unmarshal(raw, &v)
		return v, err
	case "<nil>":
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported constant type %q", valueType)
}
