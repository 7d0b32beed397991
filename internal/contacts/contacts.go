// Package contacts is the client API of the contacts service. Every call goes
// through a client.Registry, so a broker restart is recovered on the next call.
package contacts

import (
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/client"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
)

// Client is one connected handle.
type Client struct {
	reg    *client.Registry
	handle *client.Handle
}

// Connect attaches a new handle under key. Use client.ProcessKey to share
// the process session, or a key of your own for a dedicated one.
func Connect(reg *client.Registry, key client.Key) (*Client, error) {
	h := client.NewHandle(key)
	if err := reg.Connect(key, h); err != nil {
		return nil, err
	}
	return &Client{reg: reg, handle: h}, nil
}

func (c *Client) Close() error {
	return c.reg.Close(c.handle)
}

// Version is the change version of the last mutation this handle made, or
// client.InvalidVersion once it is closed.
func (c *Client) Version() int64 {
	return c.reg.GetVersion(c.handle)
}

func (c *Client) Handle() *client.Handle { return c.handle }

func (c *Client) InsertPerson(p *ipc.Person) (int64, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: nil person", ipc.ErrInvalidParameter)
	}
	var out ipc.IDResponse
	if err := c.reg.CallMutating(c.handle, ipc.ModulePerson, ipc.FuncInsert, p, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *Client) UpdatePerson(p *ipc.Person) error {
	if p == nil {
		return fmt.Errorf("%w: nil person", ipc.ErrInvalidParameter)
	}
	return c.reg.CallMutating(c.handle, ipc.ModulePerson, ipc.FuncUpdate, p, nil)
}

func (c *Client) DeletePerson(id int64) error {
	return c.reg.CallMutating(c.handle, ipc.ModulePerson, ipc.FuncDelete, &ipc.IDRequest{ID: id}, nil)
}

func (c *Client) GetPerson(id int64) (*ipc.Person, error) {
	var out ipc.Person
	if err := c.reg.CallQuery(c.handle, ipc.ModulePerson, ipc.FuncGet, &ipc.IDRequest{ID: id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GroupAddContact(groupID, personID int64) error {
	req := &ipc.GroupMemberRequest{GroupID: groupID, PersonID: personID}
	return c.reg.CallMutating(c.handle, ipc.ModuleGroup, ipc.FuncGroupAddContact, req, nil)
}

func (c *Client) GroupRemoveContact(groupID, personID int64) error {
	req := &ipc.GroupMemberRequest{GroupID: groupID, PersonID: personID}
	return c.reg.CallMutating(c.handle, ipc.ModuleGroup, ipc.FuncGroupRemoveContact, req, nil)
}

func (c *Client) InsertPhoneLog(l *ipc.PhoneLog) (int64, error) {
	if l == nil {
		return 0, fmt.Errorf("%w: nil phone log", ipc.ErrInvalidParameter)
	}
	var out ipc.IDResponse
	if err := c.reg.CallMutating(c.handle, ipc.ModulePhoneLog, ipc.FuncInsert, l, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *Client) DeletePhoneLog(id int64) error {
	return c.reg.CallMutating(c.handle, ipc.ModulePhoneLog, ipc.FuncDelete, &ipc.IDRequest{ID: id}, nil)
}

// ChangesByVersion lists the changes of topic made after version.
func (c *Client) ChangesByVersion(topic ipc.Topic, version int64) (*ipc.ChangesResponse, error) {
	var out ipc.ChangesResponse
	req := &ipc.ChangesRequest{Topic: topic, Version: version}
	if err := c.reg.CallQuery(c.handle, ipc.ModuleDB, ipc.FuncGetChangesByVersion, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CurrentVersion() (int64, error) {
	var out ipc.VersionResponse
	if err := c.reg.CallQuery(c.handle, ipc.ModuleDB, ipc.FuncGetCurrentVersion, nil, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

func (c *Client) Subscribe(topic ipc.Topic, cb client.ChangeCallback, userData any) error {
	return c.reg.Subscribe(c.handle.Key(), topic, cb, userData)
}

func (c *Client) Unsubscribe(topic ipc.Topic, cb client.ChangeCallback, userData any) error {
	return c.reg.Unsubscribe(topic, cb, userData)
}
