package domain

// Context carries the identity and environment a flag or experiment is
// evaluated against. With* helpers return modified copies and never touch
// the receiver's attribute map.
type Context struct {
	UserID     string         `json:"user_id,omitempty"`
	DeviceID   string         `json:"device_id,omitempty"`
	AppVersion string         `json:"app_version,omitempty"`
	OSName     string         `json:"os_name,omitempty"`
	OSVersion  string         `json:"os_version,omitempty"`
	Locale     string         `json:"locale,omitempty"`
	Region     string         `json:"region,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// NewContext creates a context for the given user.
func NewContext(userID string) Context {
	return Context{
		UserID:     userID,
		Attributes: make(map[string]any),
	}
}

func (c Context) WithUserID(id string) Context {
	c.UserID = id
	return c
}

func (c Context) WithDeviceID(id string) Context {
	c.DeviceID = id
	return c
}

func (c Context) WithAppVersion(version string) Context {
	c.AppVersion = version
	return c
}

func (c Context) WithOS(name, version string) Context {
	c.OSName = name
	c.OSVersion = version
	return c
}

func (c Context) WithLocale(locale string) Context {
	c.Locale = locale
	return c
}

func (c Context) WithRegion(region string) Context {
	c.Region = region
	return c
}

// WithAttribute returns a copy of c with key set to value.
func (c Context) WithAttribute(key string, value any) Context {
	attrs := make(map[string]any, len(c.Attributes)+1)
	for k, v := range c.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	c.Attributes = attrs
	return c
}

// WithAttributes returns a copy of c with all of values merged in.
func (c Context) WithAttributes(values map[string]any) Context {
	attrs := make(map[string]any, len(c.Attributes)+len(values))
	for k, v := range c.Attributes {
		attrs[k] = v
	}
	for k, v := range values {
		attrs[k] = v
	}
	c.Attributes = attrs
	return c
}

// Attribute returns the attribute stored under key.
func (c Context) Attribute(key string) (any, bool) {
	if c.Attributes == nil {
		return nil, false
	}
	v, ok := c.Attributes[key]
	return v, ok
}

// BucketingID returns the stable identifier used for experiment bucketing:
// the user id when present, otherwise the device id.
func (c Context) BucketingID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.DeviceID
}

// IsZero reports whether no field of c is set.
func (c Context) IsZero() bool {
	return c.UserID == "" && c.DeviceID == "" && c.AppVersion == "" &&
		c.OSName == "" && c.OSVersion == "" && c.Locale == "" &&
		c.Region == "" && len(c.Attributes) == 0
}
