package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "email masked",
			in:   "Contact me at jonas.berg@example.com please",
			want: "Contact me at [email] please",
		},
		{
			name: "phone masked",
			in:   "Call +47 912 34 567 tomorrow",
			want: "Call [phone] tomorrow",
		},
		{
			name: "norwegian address masked",
			in:   "Jeg bor i Storgata 12B i Oslo",
			want: "Jeg bor i [address] i Oslo",
		},
		{
			name: "iso date survives",
			in:   "I move out on 2025-03-15 as planned",
			want: "I move out on 2025-03-15 as planned",
		},
		{
			name: "separator date survives",
			in:   "Flytter 15.03.2025 til ny bolig",
			want: "Flytter 15.03.2025 til ny bolig",
		},
		{
			name: "clean text untouched",
			in:   "Jeg vil si opp abonnementet mitt",
			want: "Jeg vil si opp abonnementet mitt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", Email("jonas@example.com"))
	assert.Equal(t, "[email]", Email("not-an-address"))
	assert.Equal(t, "[email]", Email("@example.com"))
	assert.Equal(t, "[email]", Email("jonas@"))
}

func TestContainsPII(t *testing.T) {
	assert.True(t, ContainsPII("reach me on anna@corp.de"))
	assert.True(t, ContainsPII("tel: 22 33 44 55 66"))
	assert.False(t, ContainsPII("Oppsigelsen trer i kraft ved utgangen av inneværende måned."))
}
