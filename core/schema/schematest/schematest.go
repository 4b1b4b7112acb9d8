// Package schematest provides module fixtures for tests.
package schematest

import "github.com/artpar/modreg/core/schema"

// Types has no imports and is referenced by System.
const Types = `module: acme-types
revision: "2024-01-10"
features: [extended]
data:
  - container: servers
    children:
      - list: server
        key: name
        children:
          - leaf: name
            type: string
          - leaf: port
            type: uint
          - leaf: tls
            if-feature: extended
            type: boolean
`

// System imports Types. Its only reference to Types outside feature ntp is
// the instance-identifier default.
const System = `module: acme-system
revision: "2024-03-01"
imports: [acme-types]
features: [ntp, syslog]
data:
  - container: system
    must: "count(server) < 10"
    children:
      - leaf: hostname
        type: string
      - leaf: ntp-server
        if-feature: ntp
        type: { base: leafref, path: "/acme-types:servers/server/name" }
      - list: server
        key: name
        children:
          - leaf: name
            type: string
          - leaf: target
            type: instance-identifier
            default: "/acme-types:servers"
      - action: restart
        input:
          - leaf: peer
            type: { base: leafref, path: "/acme-types:servers/server/name" }
rpcs:
  - rpc: reboot
    input: [ { leaf: delay, type: uint } ]
    output:
      - leaf: status
        type: { base: enumeration, enums: [ok, failed] }
notifications:
  - notification: restarted
    children:
      - leaf: server
        type: { base: leafref, path: "/acme-system:system/server/name" }
`

// Logging has data with a leafref into Types that is always enabled.
const Logging = `module: acme-logging
revision: "2024-02-01"
imports: [acme-types]
data:
  - container: logging
    children:
      - leaf: level
        type: { base: enumeration, enums: [debug, info, error] }
      - leaf: collector
        type: { base: leafref, path: "/acme-types:servers/server/name" }
`

// Owner augments Types.
const Owner = `module: acme-owner
revision: "2024-04-01"
imports: [acme-types]
augments:
  - target: "/acme-types:servers/server"
    children:
      - leaf: owner
        type: string
`

// Base is a standalone module with a feature.
const Base = `module: base
revision: "2024-01-01"
features: [f1, f2]
data:
  - container: settings
    children:
      - leaf: name
        type: string
      - leaf: extra
        if-feature: f1
        type: string
`

// Source serves every fixture.
func Source() schema.MapSource {
	return schema.MapSource{
		"acme-types":   []byte(Types),
		"acme-system":  []byte(System),
		"acme-logging": []byte(Logging),
		"acme-owner":   []byte(Owner),
		"base":         []byte(Base),
	}
}
