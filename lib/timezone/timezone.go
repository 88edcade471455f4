package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
}

// force the timezone to IST because the portal's day boundaries
// (and therefore snapshot timestamps and job retention math) are
// defined in campus time, not wherever the server happens to run
func Now() time.Time {
	return time.Now().In(Location)
}
