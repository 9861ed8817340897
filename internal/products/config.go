package products

import "time"

// Config holds the per-product expiration policy and parsing switches for
// the normalizer stage.
type Config struct {
	// Text products.
	MetarExpire time.Duration `toml:"metar_expire"`
	PirepExpire time.Duration `toml:"pirep_expire"`

	// PirepUseReportTime keys PIREP expiration off the report time instead
	// of the receive time.
	PirepUseReportTime bool `toml:"pirep_use_report_time_to_expire"`

	// TWGO products.
	TWGODefaultExpire time.Duration `toml:"twgo_default_expiration_time"`

	// BypassSmartExpiration forces the TWGO default expiration even when a
	// NOTAM validity end or geometry stop times are available.
	BypassSmartExpiration bool `toml:"bypass_twgo_smart_expiration"`

	// CancelExpire is how long cancellation records stay active so the
	// cancellation can propagate to consumers.
	CancelExpire time.Duration `toml:"cancel_expire"`

	// NOTAMPermTime stands in for a PERM end of validity.
	NOTAMPermTime time.Time `toml:"notam_perm_time"`

	// Imagery.
	NexradRegionalExpire time.Duration `toml:"nexrad_regional_expire"`
	NexradConusExpire    time.Duration `toml:"nexrad_conus_expire"`
	TurbulenceExpire     time.Duration `toml:"turbulence_expire"`
	IcingExpire          time.Duration `toml:"icing_expire"`
	CloudTopsExpire      time.Duration `toml:"cloud_tops_expire"`
	LightningExpire      time.Duration `toml:"lightning_expire"`

	// Station-scoped products.
	FISBUnavailableExpire time.Duration `toml:"fisb_unavailable_expire"`
	ServiceStatusExpire   time.Duration `toml:"service_status_expire"`
}

// Defaults returns the stock expiration policy. The imagery intervals come
// from the FIS-B update and transmission schedule; the rest match the
// validity conventions of each FAA product.
func Defaults() Config {
	return Config{
		MetarExpire:        120 * time.Minute,
		PirepExpire:        120 * time.Minute,
		PirepUseReportTime: true,

		TWGODefaultExpire:     61 * time.Minute,
		BypassSmartExpiration: false,
		CancelExpire:          60 * time.Minute,
		NOTAMPermTime:         time.Date(2038, 1, 1, 0, 0, 0, 0, time.UTC),

		NexradRegionalExpire: 75 * time.Minute,
		NexradConusExpire:    75 * time.Minute,
		TurbulenceExpire:     105 * time.Minute,
		IcingExpire:          105 * time.Minute,
		CloudTopsExpire:      105 * time.Minute,
		LightningExpire:      75 * time.Minute,

		FISBUnavailableExpire: 20 * time.Minute,
		ServiceStatusExpire:   40 * time.Second,
	}
}
