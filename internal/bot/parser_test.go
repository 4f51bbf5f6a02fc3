package bot

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	tests := []struct {
		text  string
		cmd   string
		args  []string
		isCmd bool
	}{
		{"!баланс", "баланс", nil, true},
		{".Выплата 650 https://pay/1", "выплата", []string{"650", "https://pay/1"}, true},
		{"/start@support_bot", "start", nil, true},
		{"  !тикет general не работает вход ", "тикет", []string{"general", "не", "работает", "вход"}, true},
		{"привет", "", nil, false},
		{"!", "", nil, false},
		{"", "", nil, false},
	}

	for _, tt := range tests {
		cmd, args, ok := p.ParseCommand(tt.text)
		if cmd != tt.cmd || ok != tt.isCmd || !reflect.DeepEqual(args, tt.args) {
			t.Errorf("ParseCommand(%q) = %q, %v, %v; want %q, %v, %v",
				tt.text, cmd, args, ok, tt.cmd, tt.args, tt.isCmd)
		}
	}
}
