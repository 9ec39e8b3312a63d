// Package normative seeds a typesystem.Registry with the built-in TOSCA
// Simple Profile type tables for each supported tosca_definitions_version,
// and exposes RegisterExtension for named profile extensions (NFV, MEC)
// exactly like the core's own versions, per §9's "plugin profile
// extensions... integrate via a registration callback" design note.
package normative

import (
	"github.com/toscaforge/tosca/typesystem"
)

func init() {
	for _, v := range []string{
		"tosca_simple_yaml_1_0",
		"tosca_simple_yaml_1_1",
		"tosca_simple_yaml_1_2",
		"tosca_simple_yaml_1_3",
	} {
		typesystem.RegisterProfile(v, seedCore)
	}
}

// RegisterExtension is the plugin registration callback mentioned in §9: it
// lets a caller (e.g. an NFV or MEC profile package) add its own type table
// keyed by a version identifier of its choosing, built on top of the core
// seed function.
func RegisterExtension(version string, extra typesystem.SeedFunc) {
	typesystem.RegisterProfile(version, func(r *typesystem.Registry) error {
		if err := seedCore(r); err != nil {
			return err
		}
		return extra(r)
	})
}

func reg(r *typesystem.Registry, def *typesystem.TypeDefinition) error {
	return r.Register(def)
}

func seedCore(r *typesystem.Registry) error {
	for _, def := range coreCapabilityTypes() {
		if err := reg(r, def); err != nil {
			return err
		}
	}
	for _, def := range coreDataTypes() {
		if err := reg(r, def); err != nil {
			return err
		}
	}
	for _, def := range coreRelationshipTypes() {
		if err := reg(r, def); err != nil {
			return err
		}
	}
	for _, def := range coreNodeTypes() {
		if err := reg(r, def); err != nil {
			return err
		}
	}
	for _, def := range coreGroupAndPolicyTypes() {
		if err := reg(r, def); err != nil {
			return err
		}
	}
	// Historical aliases (§9 Open Question: the spec treats lookups as
	// case-sensitive, so the lowercase-namespace spelling some templates use
	// is NOT registered here — only the documented metadata.alias mechanism
	// is, for tosca.nodes.Storage.BlockStorage's older short name.
	return reg(r, &typesystem.TypeDefinition{
		Name:     "tosca.nodes.BlockStorage",
		Kind:     typesystem.KindNode,
		AliasOf:  "tosca.nodes.Storage.BlockStorage",
		Metadata: map[string]any{"alias": true},
	})
}

func prop(name string, typ typesystem.QualifiedName, required bool, def any) *typesystem.PropertyDef {
	return &typesystem.PropertyDef{Name: name, Type: typ, Required: required, Default: def, Status: typesystem.StatusSupported}
}

func coreCapabilityTypes() []*typesystem.TypeDefinition {
	return []*typesystem.TypeDefinition{
		{Name: "tosca.capabilities.Root", Kind: typesystem.KindCapability},
		{
			Name: "tosca.capabilities.Node", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Root",
		},
		{
			Name: "tosca.capabilities.Container", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Root",
			Properties: map[string]*typesystem.PropertyDef{
				"num_cpus":  prop("num_cpus", "integer", false, nil),
				"cpu_frequency": prop("cpu_frequency", "scalar-unit.frequency", false, nil),
				"disk_size": prop("disk_size", "scalar-unit.size", false, nil),
				"mem_size":  prop("mem_size", "scalar-unit.size", false, nil),
			},
		},
		{
			Name: "tosca.capabilities.Endpoint", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Root",
			Properties: map[string]*typesystem.PropertyDef{
				"protocol": prop("protocol", "string", true, "tcp"),
				"port":     prop("port", "integer", false, nil),
				"secure":   prop("secure", "boolean", false, false),
				"network_name": prop("network_name", "string", false, "PRIVATE"),
			},
		},
		{Name: "tosca.capabilities.Endpoint.Public", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Endpoint"},
		{Name: "tosca.capabilities.Endpoint.Admin", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Endpoint"},
		{Name: "tosca.capabilities.Endpoint.Database", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Endpoint"},
		{Name: "tosca.capabilities.Attachment", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Root"},
		{
			Name: "tosca.capabilities.OperatingSystem", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Root",
			Properties: map[string]*typesystem.PropertyDef{
				"architecture": prop("architecture", "string", false, nil),
				"type":         prop("type", "string", false, nil),
				"distribution": prop("distribution", "string", false, nil),
				"version":      prop("version", "version", false, nil),
			},
		},
		{Name: "tosca.capabilities.Scalable", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Root",
			Properties: map[string]*typesystem.PropertyDef{
				"min_instances":     prop("min_instances", "integer", true, 1),
				"max_instances":     prop("max_instances", "integer", true, 1),
				"default_instances": prop("default_instances", "integer", false, nil),
			},
		},
		{Name: "tosca.capabilities.network.Bindable", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Node"},
		{Name: "tosca.capabilities.network.Linkable", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Node"},
		{Name: "tosca.capabilities.DatabaseEndpoint", Kind: typesystem.KindCapability, Parent: "tosca.capabilities.Endpoint.Database"},
	}
}

func coreDataTypes() []*typesystem.TypeDefinition {
	return []*typesystem.TypeDefinition{
		{Name: "tosca.datatypes.Credential", Kind: typesystem.KindData,
			Properties: map[string]*typesystem.PropertyDef{
				"protocol": prop("protocol", "string", false, nil),
				"token_type": prop("token_type", "string", true, "password"),
				"token":     prop("token", "string", true, nil),
				"keys":      prop("keys", "map", false, nil),
				"user":      prop("user", "string", false, nil),
			},
		},
		{Name: "tosca.datatypes.network.NetworkInfo", Kind: typesystem.KindData,
			Properties: map[string]*typesystem.PropertyDef{
				"network_name": prop("network_name", "string", false, nil),
				"network_id":   prop("network_id", "string", false, nil),
				"addresses":    prop("addresses", "list", false, nil),
			},
		},
		{Name: "tosca.datatypes.network.PortInfo", Kind: typesystem.KindData,
			Properties: map[string]*typesystem.PropertyDef{
				"port_id":    prop("port_id", "string", false, nil),
				"port_name":  prop("port_name", "string", false, nil),
				"network_id": prop("network_id", "string", false, nil),
				"mac_address": prop("mac_address", "string", false, nil),
				"addresses":  prop("addresses", "list", false, nil),
			},
		},
	}
}

func coreRelationshipTypes() []*typesystem.TypeDefinition {
	return []*typesystem.TypeDefinition{
		{Name: "tosca.relationships.Root", Kind: typesystem.KindRelationship},
		{Name: "tosca.relationships.DependsOn", Kind: typesystem.KindRelationship, Parent: "tosca.relationships.Root"},
		{Name: "tosca.relationships.HostedOn", Kind: typesystem.KindRelationship, Parent: "tosca.relationships.Root"},
		{Name: "tosca.relationships.ConnectsTo", Kind: typesystem.KindRelationship, Parent: "tosca.relationships.Root",
			Properties: map[string]*typesystem.PropertyDef{
				"credential": prop("credential", "tosca.datatypes.Credential", false, nil),
			},
		},
		{Name: "tosca.relationships.AttachesTo", Kind: typesystem.KindRelationship, Parent: "tosca.relationships.Root",
			Properties: map[string]*typesystem.PropertyDef{
				"location":    prop("location", "string", true, nil),
				"device":      prop("device", "string", false, nil),
			},
		},
		{Name: "tosca.relationships.RoutesTo", Kind: typesystem.KindRelationship, Parent: "tosca.relationships.ConnectsTo"},
	}
}

func coreNodeTypes() []*typesystem.TypeDefinition {
	root := &typesystem.TypeDefinition{
		Name: "tosca.nodes.Root", Kind: typesystem.KindNode,
		Attributes: map[string]*typesystem.PropertyDef{
			"tosca_id":   prop("tosca_id", "string", false, nil),
			"tosca_name": prop("tosca_name", "string", false, nil),
			"state":      prop("state", "string", false, nil),
		},
		Capabilities: map[string]*typesystem.CapabilityDef{
			"feature": {Name: "feature", Type: "tosca.capabilities.Node", Occurrences: typesystem.DefaultCapabilityOccurrences()},
		},
		Requirements: []*typesystem.RequirementDef{
			{Name: "dependency", Capability: "tosca.capabilities.Node", Relationship: "tosca.relationships.DependsOn",
				Occurrences: typesystem.Occurrences{Min: 0, Max: typesystem.UnboundedOccurrences}},
		},
	}
	compute := &typesystem.TypeDefinition{
		Name: "tosca.nodes.Compute", Kind: typesystem.KindNode, Parent: "tosca.nodes.Root",
		Capabilities: map[string]*typesystem.CapabilityDef{
			"host":     {Name: "host", Type: "tosca.capabilities.Container", Occurrences: typesystem.Occurrences{Min: 1, Max: 1}},
			"os":       {Name: "os", Type: "tosca.capabilities.OperatingSystem", Occurrences: typesystem.DefaultCapabilityOccurrences()},
			"scalable": {Name: "scalable", Type: "tosca.capabilities.Scalable", Occurrences: typesystem.Occurrences{Min: 1, Max: 1}},
			"endpoint": {Name: "endpoint", Type: "tosca.capabilities.Endpoint.Admin", Occurrences: typesystem.DefaultCapabilityOccurrences()},
			"binding":  {Name: "binding", Type: "tosca.capabilities.network.Bindable", Occurrences: typesystem.DefaultCapabilityOccurrences()},
		},
		Requirements: []*typesystem.RequirementDef{
			{Name: "local_storage", Capability: "tosca.capabilities.Attachment", Node: "tosca.nodes.BlockStorage",
				Relationship: "tosca.relationships.AttachesTo", Occurrences: typesystem.Occurrences{Min: 0, Max: typesystem.UnboundedOccurrences}},
		},
	}
	softwareComponent := &typesystem.TypeDefinition{
		Name: "tosca.nodes.SoftwareComponent", Kind: typesystem.KindNode, Parent: "tosca.nodes.Root",
		Requirements: []*typesystem.RequirementDef{
			{Name: "host", Capability: "tosca.capabilities.Container", Node: "tosca.nodes.Compute",
				Relationship: "tosca.relationships.HostedOn", Occurrences: typesystem.Occurrences{Min: 1, Max: 1}},
		},
	}
	dbms := &typesystem.TypeDefinition{
		Name: "tosca.nodes.DBMS", Kind: typesystem.KindNode, Parent: "tosca.nodes.SoftwareComponent",
		Properties: map[string]*typesystem.PropertyDef{
			"root_password": prop("root_password", "string", false, nil),
			"port":          prop("port", "integer", false, nil),
		},
		Capabilities: map[string]*typesystem.CapabilityDef{
			"host": {Name: "host", Type: "tosca.capabilities.Container", Occurrences: typesystem.Occurrences{Min: 1, Max: 1}},
		},
	}
	database := &typesystem.TypeDefinition{
		Name: "tosca.nodes.Database", Kind: typesystem.KindNode, Parent: "tosca.nodes.Root",
		Properties: map[string]*typesystem.PropertyDef{
			"name":     prop("name", "string", true, nil),
			"port":     prop("port", "integer", false, nil),
			"user":     prop("user", "string", false, nil),
			"password": prop("password", "string", false, nil),
		},
		Requirements: []*typesystem.RequirementDef{
			{Name: "host", Capability: "tosca.capabilities.Container", Node: "tosca.nodes.DBMS",
				Relationship: "tosca.relationships.HostedOn", Occurrences: typesystem.Occurrences{Min: 1, Max: 1}},
		},
		Capabilities: map[string]*typesystem.CapabilityDef{
			"database_endpoint": {Name: "database_endpoint", Type: "tosca.capabilities.DatabaseEndpoint", Occurrences: typesystem.DefaultCapabilityOccurrences()},
		},
	}
	storageBlockStorage := &typesystem.TypeDefinition{
		Name: "tosca.nodes.Storage.BlockStorage", Kind: typesystem.KindNode, Parent: "tosca.nodes.Root",
		Properties: map[string]*typesystem.PropertyDef{
			"size":           prop("size", "scalar-unit.size", true, nil),
			"volume_id":      prop("volume_id", "string", false, nil),
			"snapshot_id":    prop("snapshot_id", "string", false, nil),
		},
		Capabilities: map[string]*typesystem.CapabilityDef{
			"attachment": {Name: "attachment", Type: "tosca.capabilities.Attachment", Occurrences: typesystem.DefaultCapabilityOccurrences()},
		},
	}
	network := &typesystem.TypeDefinition{
		Name: "tosca.nodes.network.Network", Kind: typesystem.KindNode, Parent: "tosca.nodes.Root",
		Properties: map[string]*typesystem.PropertyDef{
			"ip_version": prop("ip_version", "integer", false, 4),
			"cidr":       prop("cidr", "string", false, nil),
		},
		Capabilities: map[string]*typesystem.CapabilityDef{
			"link": {Name: "link", Type: "tosca.capabilities.network.Linkable", Occurrences: typesystem.DefaultCapabilityOccurrences()},
		},
	}
	webServer := &typesystem.TypeDefinition{
		Name: "tosca.nodes.WebServer", Kind: typesystem.KindNode, Parent: "tosca.nodes.SoftwareComponent",
		Capabilities: map[string]*typesystem.CapabilityDef{
			"data_endpoint":  {Name: "data_endpoint", Type: "tosca.capabilities.Endpoint", Occurrences: typesystem.DefaultCapabilityOccurrences()},
			"admin_endpoint": {Name: "admin_endpoint", Type: "tosca.capabilities.Endpoint.Admin", Occurrences: typesystem.DefaultCapabilityOccurrences()},
		},
	}
	webApplication := &typesystem.TypeDefinition{
		Name: "tosca.nodes.WebApplication", Kind: typesystem.KindNode, Parent: "tosca.nodes.Root",
		Requirements: []*typesystem.RequirementDef{
			{Name: "host", Capability: "tosca.capabilities.Container", Node: "tosca.nodes.WebServer",
				Relationship: "tosca.relationships.HostedOn", Occurrences: typesystem.Occurrences{Min: 1, Max: 1}},
		},
		Capabilities: map[string]*typesystem.CapabilityDef{
			"app_endpoint": {Name: "app_endpoint", Type: "tosca.capabilities.Endpoint", Occurrences: typesystem.DefaultCapabilityOccurrences()},
		},
	}

	return []*typesystem.TypeDefinition{
		root, compute, softwareComponent, dbms, database, storageBlockStorage, network, webServer, webApplication,
	}
}

func coreGroupAndPolicyTypes() []*typesystem.TypeDefinition {
	return []*typesystem.TypeDefinition{
		{Name: "tosca.groups.Root", Kind: typesystem.KindGroup},
		{Name: "tosca.policies.Root", Kind: typesystem.KindPolicy},
		{Name: "tosca.policies.Placement", Kind: typesystem.KindPolicy, Parent: "tosca.policies.Root"},
		{Name: "tosca.policies.Scaling", Kind: typesystem.KindPolicy, Parent: "tosca.policies.Root"},
		{Name: "tosca.policies.Update", Kind: typesystem.KindPolicy, Parent: "tosca.policies.Root"},
		{Name: "tosca.policies.Performance", Kind: typesystem.KindPolicy, Parent: "tosca.policies.Root"},
	}
}
