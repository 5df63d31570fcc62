package discovery

import "testing"

func TestAddLinkDeduplicates(t *testing.T) {
	d := New([]Resource{{ID: "r1", Meta: Meta{Name: "a", Display: "a", Kind: "thing"}}})

	link := Link{Direction: "out", Kind: "other", Path: "$.resources[1]", Pointer: "/resources/1"}
	if !d.AddLink("r1", link) {
		t.Fatal("first add must report an insertion")
	}
	// link counters key off the report, so a duplicate must say false
	if d.AddLink("r1", link) {
		t.Fatal("duplicate add must not report an insertion")
	}
	if len(d.Links["r1"]) != 1 {
		t.Fatalf("expected 1 link after duplicate add, got %d", len(d.Links["r1"]))
	}

	// same pointer, different direction is a distinct edge
	if !d.AddLink("r1", Link{Direction: "in", Kind: "other", Path: "$.resources[1]", Pointer: "/resources/1"}) {
		t.Fatal("distinct direction must report an insertion")
	}
	if len(d.Links["r1"]) != 2 {
		t.Fatalf("expected 2 links, got %d", len(d.Links["r1"]))
	}
}

func TestSerializeShape(t *testing.T) {
	d := New([]Resource{{
		ID:   "r1",
		Meta: Meta{Name: "db1", Display: "db1", Kind: "instance"},
		Struct: map[string]interface{}{
			"settings": map[string]interface{}{"tier": "db-f1-micro"},
		},
	}})

	doc, err := d.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	resources, ok := doc["resources"].([]interface{})
	if !ok || len(resources) != 1 {
		t.Fatalf("expected resources sequence of 1, got %#v", doc["resources"])
	}
	res, _ := resources[0].(map[string]interface{})
	if res["id"] != "r1" {
		t.Errorf("unexpected id %v", res["id"])
	}
	meta, _ := res["meta"].(map[string]interface{})
	if meta["kind"] != "instance" {
		t.Errorf("unexpected kind %v", meta["kind"])
	}
	if _, ok := meta["project"]; ok {
		t.Error("empty optional meta fields must be omitted")
	}
	payload, _ := res["struct"].(map[string]interface{})
	settings, _ := payload["settings"].(map[string]interface{})
	if settings["tier"] != "db-f1-micro" {
		t.Errorf("payload not preserved: %#v", payload)
	}
}

func TestStructOf(t *testing.T) {
	type repo struct {
		Name string `json:"repositoryName"`
		Arn  string `json:"repositoryArn,omitempty"`
	}
	payload, err := StructOf(repo{Name: "web"})
	if err != nil {
		t.Fatalf("StructOf failed: %v", err)
	}
	if payload["repositoryName"] != "web" {
		t.Errorf("unexpected payload %#v", payload)
	}
	if _, ok := payload["repositoryArn"]; ok {
		t.Error("omitempty field should be absent")
	}
}
