// Package caller fans out phone calls over the Twilio REST API, one call per
// enabled number in every enabled account.
package caller

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"listing-sniper/internal/corelog"
	"listing-sniper/internal/httpclient"
)

var elevenDigits = regexp.MustCompile(`^\d{11}$`)

// Number is one phone number entry.
type Number struct {
	Enabled bool
	E164    string // "+<11 digits>"
}

// Account groups numbers under one account name.
type Account struct {
	Name    string
	Enabled bool
	Numbers []Number
}

type fileNumberEntry struct {
	Enabled bool `yaml:"enabled"`
	Number  int  `yaml:"number"`
}

type fileAccountEntry struct {
	Enabled bool              `yaml:"enabled"`
	Numbers []fileNumberEntry `yaml:"numbers"`
}

type rawFile map[string]fileAccountEntry

// Caller places calls via the Twilio Voice REST API.
type Caller struct {
	fromNumber string
	accountSID string
	authToken  string

	accounts []Account
	client   *httpclient.Client
	log      *corelog.Logger
}

// twimlURL is the fixed voice-XML callback the original implementation
// points every call at: it just announces the event, no IVR tree.
const twimlURL = "http://twimlets.com/message?Message%5B0%5D=A+new+coin+was+listed"

// Load parses phone_numbers.yaml and constructs a Caller. A malformed phone
// number or a non-11-digit entry fails the whole load (§7.6, §8 invariant:
// "Caller construction accepts an account iff enabled=true and every phone
// entry is an 11-digit integer").
func Load(path, fromNumber, accountSID, authToken string) (*Caller, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("caller: read %s: %w", path, err)
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("caller: parse %s: %w", path, err)
	}

	var accounts []Account
	for name, entry := range raw {
		if !entry.Enabled {
			continue
		}
		acc := Account{Name: name, Enabled: true}
		for _, n := range entry.Numbers {
			digits := strconv.Itoa(n.Number)
			if !elevenDigits.MatchString(digits) {
				return nil, fmt.Errorf("caller: account %s has malformed number %q, want 11 digits", name, digits)
			}
			// Preserve the original's quirk: a disabled number is still
			// added to the set, only logged differently (§9 ambiguous
			// behavior note).
			acc.Numbers = append(acc.Numbers, Number{Enabled: n.Enabled, E164: "+" + digits})
		}
		accounts = append(accounts, acc)
	}

	return &Caller{
		fromNumber: fromNumber,
		accountSID: accountSID,
		authToken:  authToken,
		accounts:   accounts,
		client:     httpclient.New(),
		log:        corelog.New("caller"),
	}, nil
}

// CallAll places one call per enabled number in every enabled account,
// concurrently, and does not wait beyond scheduling them.
func (c *Caller) CallAll(ctx context.Context) {
	for _, acc := range c.accounts {
		for _, n := range acc.Numbers {
			if !n.Enabled {
				continue
			}
			go c.call(ctx, acc.Name, n.E164)
		}
	}
}

func (c *Caller) call(ctx context.Context, accountName, to string) {
	form := url.Values{
		"To":   {to},
		"From": {c.fromNumber},
		"Url":  {twimlURL},
	}
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Calls.json", c.accountSID)
	headers := map[string]string{"Authorization": "Basic " + basicAuth(c.accountSID, c.authToken)}

	if _, err := c.client.Post(ctx, endpoint, httpclient.OutputJSON, headers, form); err != nil {
		c.log.Notify("call failed for %s (%s): %v", accountName, to, err)
		return
	}
	c.log.Notify("called %s (%s)", accountName, to)
}

// AccountNames lists every enabled account name, for the startup
// announcement.
func (c *Caller) AccountNames() []string {
	out := make([]string, 0, len(c.accounts))
	for _, acc := range c.accounts {
		out = append(out, acc.Name)
	}
	return out
}

func basicAuth(sid, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(sid + ":" + token))
}
