package source

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws/arn"
)

const instanceResourcePrefix = "instance/"

// ExtractOption tunes InstanceIDs.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	accountID string
}

// WithAccountID restricts extraction to ARNs owned by the given account.
func WithAccountID(id string) ExtractOption {
	return func(c *extractConfig) { c.accountID = id }
}

// InstanceIDs returns the EC2 instance IDs embedded in resources, in order.
// References that are not EC2 instance ARNs (volumes, load balancers, …) are
// dropped without error; no matches yields an empty slice.
func InstanceIDs(resources []string, opts ...ExtractOption) []string {
	var cfg extractConfig
	for _, o := range opts {
		o(&cfg)
	}

	ids := make([]string, 0, len(resources))
	for _, r := range resources {
		if id, ok := instanceID(r, cfg); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// instanceID matches arn:<partition>:ec2:<region>:<account>:instance/i-<id>.
func instanceID(resource string, cfg extractConfig) (string, bool) {
	if !arn.IsARN(resource) {
		return "", false
	}
	a, err := arn.Parse(resource)
	if err != nil {
		return "", false
	}
	switch a.Partition {
	case "aws", "aws-cn", "aws-us-gov":
	default:
		return "", false
	}
	if a.Service != "ec2" || a.Region == "" || !isDigits(a.AccountID) {
		return "", false
	}
	if cfg.accountID != "" && a.AccountID != cfg.accountID {
		return "", false
	}
	id, ok := strings.CutPrefix(a.Resource, instanceResourcePrefix)
	if !ok || len(id) <= len("i-") || !strings.HasPrefix(id, "i-") {
		return "", false
	}
	return id, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
