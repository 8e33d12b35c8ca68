package models

import "time"

// mjdUnixEpoch is the Modified Julian Date of 1970-01-01.
const mjdUnixEpoch = 40587

// Exposure is one row of dashboard_exposure.
type Exposure struct {
	ExposureID int64      `db:"exposure_id" json:"exposure_id"`
	TelRA      *float64   `db:"telra" json:"telra,omitempty"`
	TelDec     *float64   `db:"teldec" json:"teldec,omitempty"`
	Tile       *int64     `db:"tile" json:"tile,omitempty"`
	DateObs    *time.Time `db:"dateobs" json:"dateobs,omitempty"`
	Flavor     *string    `db:"flavor" json:"flavor,omitempty"`
	Night      *string    `db:"night" json:"night,omitempty"`
	Airmass    *float64   `db:"airmass" json:"airmass,omitempty"`
	Program    *string    `db:"program" json:"program,omitempty"`
	ExpTime    *float64   `db:"exptime" json:"exptime,omitempty"`
}

// DateMJD returns the modified julian date of the observation.
func (e Exposure) DateMJD() *float64 {
	if e.DateObs == nil || e.DateObs.IsZero() {
		return nil
	}
	mjd := float64(e.DateObs.UnixNano())/float64(24*time.Hour) + mjdUnixEpoch
	return &mjd
}

// ExposureHistoryRecord is an exposure decorated with the most recent process
// run over it.
type ExposureHistoryRecord struct {
	Exposure
	LastExposureProcessID      *int64     `db:"last_exposure_process_id" json:"last_exposure_process_id,omitempty"`
	LastExposureProcessQATests QATests    `db:"last_exposure_process_qa_tests" json:"last_exposure_process_qa_tests"`
	LastExposureProcessStart   *time.Time `db:"last_exposure_process_start" json:"-"`
	LastExposureProcessEnd     *time.Time `db:"last_exposure_process_end" json:"-"`
}

// LastExposureProcessRuntime is the runtime of the most recent process, nil
// while it is still running.
func (r ExposureHistoryRecord) LastExposureProcessRuntime() *string {
	return Runtime(r.LastExposureProcessStart, r.LastExposureProcessEnd)
}
