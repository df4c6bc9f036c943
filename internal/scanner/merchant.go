package scanner

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Known phishing hosts. A host containing one of these is treated as known.
var phishingDomains = []string{
	"amazonsecure-payment.com",
	"paypal-secure-checkout.com",
	"appleid-verification.com",
	"secure-bank-verification.com",
	"account-verify-now.com",
	"tax-refund-gov.com",
	"netflix-billing-update.com",
	"cashback-rewards-special.com",
	"prize-winner-claim.com",
	"crypto-investment-guaranteed.com",
}

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)verify.*account`),
	regexp.MustCompile(`(?i)secure.*payment`),
	regexp.MustCompile(`(?i)confirm.*identity`),
	regexp.MustCompile(`(?i)update.*billing`),
	regexp.MustCompile(`(?i)\.ru/`),
	regexp.MustCompile(`(?i)\.xyz/`),
	regexp.MustCompile(`(?i)\.cc/`),
	regexp.MustCompile(`(?i)unusual.*activity`),
	regexp.MustCompile(`(?i)account.*suspended`),
	regexp.MustCompile(`(?i)your.*prize`),
	regexp.MustCompile(`(?i)lottery.*winner`),
	regexp.MustCompile(`(?i)urgent.*action`),
	regexp.MustCompile(`(?i)password.*reset`),
	regexp.MustCompile(`(?i)security.*breach`),
}

var suspiciousTLDs = []string{".xyz", ".top", ".tk", ".ml", ".ga", ".cf"}

// Risk score weights and the score at which a URL counts as suspicious.
const (
	scoreKnownDomain   = 80
	scorePattern       = 40
	scoreSuspiciousTLD = 30
	scoreIPHost        = 50
	scoreInvalidURL    = 60

	suspiciousScore = 50
)

// MerchantAssessment is the risk verdict for a merchant URL.
type MerchantAssessment struct {
	Suspicious bool     `json:"isSuspicious"`
	RiskScore  int      `json:"riskScore"`
	Reasons    []string `json:"reasons"`
	Domain     string   `json:"domain,omitempty"`
}

// AssessMerchantURL scores a merchant URL for phishing indicators.
func AssessMerchantURL(raw string) MerchantAssessment {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MerchantAssessment{Reasons: []string{}}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return MerchantAssessment{
			Suspicious: true,
			RiskScore:  scoreInvalidURL,
			Reasons:    []string{"Invalid URL format"},
		}
	}

	host := strings.ToLower(u.Hostname())
	a := MerchantAssessment{Domain: host, Reasons: []string{}}

	if isKnownPhishingDomain(host) {
		a.RiskScore += scoreKnownDomain
		a.Reasons = append(a.Reasons, "Known phishing domain")
	}
	if matchesSuspiciousPattern(raw) {
		a.RiskScore += scorePattern
		a.Reasons = append(a.Reasons, "Suspicious URL patterns detected")
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			a.RiskScore += scoreSuspiciousTLD
			a.Reasons = append(a.Reasons, "Suspicious top-level domain")
			break
		}
	}
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		a.RiskScore += scoreIPHost
		a.Reasons = append(a.Reasons, "IP address used as domain")
	}

	a.Suspicious = a.RiskScore >= suspiciousScore
	return a
}

func isKnownPhishingDomain(host string) bool {
	for _, d := range phishingDomains {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

func matchesSuspiciousPattern(s string) bool {
	for _, re := range suspiciousPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
