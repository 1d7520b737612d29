package helpers

import "time"

// CertificateGracePeriodMonths is how long a resource certificate stays valid
// after the end of the year it was requested in.
const CertificateGracePeriodMonths = 6

// ResourceCertificateNotAfter returns the end of validity for a certificate
// requested at now: the end of that calendar year (UTC) plus the grace period.
// Requests made during the same year yield the same value, so certificates
// are not reissued just because time passed.
func ResourceCertificateNotAfter(now time.Time) time.Time {
	startOfNextYear := time.Date(now.UTC().Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	return startOfNextYear.AddDate(0, CertificateGracePeriodMonths, 0).Add(-time.Second)
}

// ResourceCertificateValidity is the validity period for a certificate
// requested at now.
func ResourceCertificateValidity(now time.Time) (time.Time, time.Time) {
	return now.UTC().Truncate(time.Second), ResourceCertificateNotAfter(now)
}

// NeedsRefresh reports whether an object valid until notAfter must be
// reissued because less than the refresh window is left.
func NeedsRefresh(now time.Time, notAfter time.Time, window time.Duration) bool {
	return !now.Add(window).Before(notAfter)
}
