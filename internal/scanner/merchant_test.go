package scanner

import "testing"

func TestAssessMerchantURL(t *testing.T) {
	tests := []struct {
		url        string
		suspicious bool
		score      int
	}{
		{"https://www.example.com/checkout", false, 0},
		{"https://amazonsecure-payment.com/login", true, 120},
		{"http://deals.top/offer", false, 30},
		{"http://deals.xyz/verify-your-account", true, 70},
		{"http://192.168.1.10/pay", true, 50},
		{"not a url", true, 60},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			a := AssessMerchantURL(tt.url)
			if a.Suspicious != tt.suspicious {
				t.Errorf("expected suspicious=%v, got %+v", tt.suspicious, a)
			}
			if a.RiskScore != tt.score {
				t.Errorf("expected score %d, got %d (%v)", tt.score, a.RiskScore, a.Reasons)
			}
		})
	}
}

func TestAssessMerchantURLEmpty(t *testing.T) {
	a := AssessMerchantURL("  ")
	if a.Suspicious || a.RiskScore != 0 || a.Reasons == nil {
		t.Errorf("unexpected assessment %+v", a)
	}
}
