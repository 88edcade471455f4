package academia

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"academia-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// CheckCookieLiveness probes whether a saved cookie set still carries
// an authenticated portal session, using a plain http client so dead
// cookies are rejected without paying for a browser launch. A network
// failure reports an error rather than false: the cookies may still be
// fine.
func CheckCookieLiveness(ctx context.Context, cookies map[string]string, output restyutil.InstrumentOutput) (bool, error) {
	ctx, span := tracer.Start(ctx, "academia.CheckCookieLiveness")
	defer span.End()

	if len(cookies) == 0 {
		return false, nil
	}

	client := resty.New().
		SetBaseURL(BaseURL).
		SetTimeout(30 * time.Second).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	restyutil.InstrumentClient(client, tracer, output)

	req := client.R().SetContext(ctx)
	for name, value := range cookies {
		req.SetCookie(&http.Cookie{Name: name, Value: value})
	}

	res, err := req.Get("/")
	if err != nil {
		return false, fmt.Errorf("probe portal: %w", err)
	}
	if res.StatusCode() >= 500 {
		return false, fmt.Errorf("portal returned %d", res.StatusCode())
	}
	if res.StatusCode() == http.StatusUnauthorized || res.StatusCode() == http.StatusForbidden {
		return false, nil
	}

	body := res.String()
	if strings.Contains(body, "My_Attendance") || strings.Contains(body, "Academic Profile") {
		return true, nil
	}
	// a signin form in the response means the portal bounced us
	if strings.Contains(body, "signinFrame") || strings.Contains(strings.ToLower(body), "sign in") {
		return false, nil
	}
	// ambiguous body with a 2xx status, let the browser probe decide
	return res.StatusCode() < 300, nil
}
