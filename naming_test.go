package etl

import "testing"

func TestUnderscore(t *testing.T) {
	tests := []struct {
		in    string
		camel bool
		exp   string
	}{
		{"Life expectancy (years)", false, "life_expectancy_years"},
		{"  GDP  ", false, "gdp"},
		{"Share (%)", false, "share_pct"},
		{"a--b__c", false, "a_b_c"},
		{"GdpPerCapita", false, "gdppercapita"},
		{"GdpPerCapita", true, "gdp_per_capita"},
		{"co2Emissions2020Total", true, "co2_emissions2020_total"},
		{"already_fine", true, "already_fine"},
		{"Côte d'Ivoire", false, "côte_d_ivoire"},
	}
	for _, tst := range tests {
		if got := Underscore(tst.in, tst.camel); got != tst.exp {
			t.Errorf("Underscore(%q, %v) = %q, expected %q", tst.in, tst.camel, got, tst.exp)
		}
	}
}
