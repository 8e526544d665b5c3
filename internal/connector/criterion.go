package connector

// Criterion is a pass/fail test deciding whether a connector applies to a
// host. Built-in criteria are evaluated by the detection engine itself,
// protocol criteria are dispatched to a protocol extension.
type Criterion interface {
	// Base returns the fields shared by every criterion.
	Base() *CriterionBase

	// TypeName is the variant name as written in connector files.
	TypeName() string

	isCriterion()
}

// CriterionList is an ordered list of criteria.
type CriterionList []Criterion

// CriterionBase holds the fields common to all criteria.
type CriterionBase struct {
	ForceSerialization bool `yaml:"forceSerialization"`
}

// Base returns the shared fields.
func (b *CriterionBase) Base() *CriterionBase { return b }

// DeviceTypeCriterion checks the host device kind against keep/exclude sets.
type DeviceTypeCriterion struct {
	CriterionBase `yaml:",inline"`
	Keep          []DeviceKind `yaml:"keep"`
	Exclude       []DeviceKind `yaml:"exclude"`
}

// ProductRequirementsCriterion requires a minimum engine version.
type ProductRequirementsCriterion struct {
	CriterionBase `yaml:",inline"`
	EngineVersion string `yaml:"engineVersion"`
}

// ProcessCriterion checks a process is running on the local host.
type ProcessCriterion struct {
	CriterionBase `yaml:",inline"`
	CommandLine   string `yaml:"commandLine"`
}

// ServiceCriterion checks a Windows service is running.
type ServiceCriterion struct {
	CriterionBase `yaml:",inline"`
	Name          string `yaml:"name"`
}

// CommandLineCriterion runs an OS command and matches its output against
// ExpectedResult, a case-insensitive regular expression.
type CommandLineCriterion struct {
	CriterionBase  `yaml:",inline"`
	CommandLine    string `yaml:"commandLine"`
	ExpectedResult string `yaml:"expectedResult"`
	ExecuteLocally bool   `yaml:"executeLocally"`
	ErrorMessage   string `yaml:"errorMessage"`
	Timeout        int64  `yaml:"timeout"`
}

// HTTPCriterion performs an HTTP request and checks the response.
type HTTPCriterion struct {
	CriterionBase       `yaml:",inline"`
	Method              string `yaml:"method"`
	URL                 string `yaml:"url"`
	Path                string `yaml:"path"`
	Header              string `yaml:"header"`
	Body                string `yaml:"body"`
	AuthenticationToken string `yaml:"authenticationToken"`
	ExpectedResult      string `yaml:"expectedResult"`
	ErrorMessage        string `yaml:"errorMessage"`
	ResultContent       string `yaml:"resultContent"`
}

// SNMPGetCriterion reads an OID.
type SNMPGetCriterion struct {
	CriterionBase  `yaml:",inline"`
	OID            string `yaml:"oid"`
	ExpectedResult string `yaml:"expectedResult"`
}

// SNMPGetNextCriterion reads the OID following the given one.
type SNMPGetNextCriterion struct {
	CriterionBase  `yaml:",inline"`
	OID            string `yaml:"oid"`
	ExpectedResult string `yaml:"expectedResult"`
}

// WBEMCriterion runs a WQL query over WBEM.
type WBEMCriterion struct {
	CriterionBase  `yaml:",inline"`
	Query          string `yaml:"query"`
	Namespace      string `yaml:"namespace"`
	ExpectedResult string `yaml:"expectedResult"`
	ErrorMessage   string `yaml:"errorMessage"`
}

// WMICriterion runs a WQL query over WMI.
type WMICriterion struct {
	CriterionBase  `yaml:",inline"`
	Query          string `yaml:"query"`
	Namespace      string `yaml:"namespace"`
	ExpectedResult string `yaml:"expectedResult"`
	ErrorMessage   string `yaml:"errorMessage"`
}

// IPMICriterion checks IPMI is reachable on the host.
type IPMICriterion struct {
	CriterionBase `yaml:",inline"`
}

// SQLCriterion runs a SQL query.
type SQLCriterion struct {
	CriterionBase  `yaml:",inline"`
	Query          string `yaml:"query"`
	ExpectedResult string `yaml:"expectedResult"`
}

func (*DeviceTypeCriterion) isCriterion()          {}
func (*ProductRequirementsCriterion) isCriterion() {}
func (*ProcessCriterion) isCriterion()             {}
func (*ServiceCriterion) isCriterion()             {}
func (*CommandLineCriterion) isCriterion()         {}
func (*HTTPCriterion) isCriterion()                {}
func (*SNMPGetCriterion) isCriterion()             {}
func (*SNMPGetNextCriterion) isCriterion()         {}
func (*WBEMCriterion) isCriterion()                {}
func (*WMICriterion) isCriterion()                 {}
func (*IPMICriterion) isCriterion()                {}
func (*SQLCriterion) isCriterion()                 {}

func (*DeviceTypeCriterion) TypeName() string          { return "deviceType" }
func (*ProductRequirementsCriterion) TypeName() string { return "productRequirements" }
func (*ProcessCriterion) TypeName() string             { return "process" }
func (*ServiceCriterion) TypeName() string             { return "service" }
func (*CommandLineCriterion) TypeName() string         { return "commandLine" }
func (*HTTPCriterion) TypeName() string                { return "http" }
func (*SNMPGetCriterion) TypeName() string             { return "snmpGet" }
func (*SNMPGetNextCriterion) TypeName() string         { return "snmpGetNext" }
func (*WBEMCriterion) TypeName() string                { return "wbem" }
func (*WMICriterion) TypeName() string                 { return "wmi" }
func (*IPMICriterion) TypeName() string                { return "ipmi" }
func (*SQLCriterion) TypeName() string                 { return "sql" }
