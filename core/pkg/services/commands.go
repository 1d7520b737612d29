package services

import (
	"context"
	"fmt"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

// CommandService is the single entry point that changes CA state. Every
// command runs to completion inside one storage transaction while holding the
// locks of the CAs it touches.
type CommandService interface {
	Handle(ctx context.Context, cmd Command) (*models.CommandResult, error)
}

type Command interface {
	CommandType() models.CommandType
	CommandGroup() models.CommandGroup
	Summary() string
}

// CACommand is a command against an existing CA. The version is the one the
// caller last observed and is checked before the command is applied.
type CACommand interface {
	Command
	TargetCA() models.VersionedID
}

// CreateCACommand creates a CA below an existing parent. Only the All
// Resources CA is created without a parent.
type CreateCACommand interface {
	Command
	ParentCAID() uint
	CAType() models.CAType
	CAName() string
}

type CreateAllResourcesCACommand struct {
	Name string `validate:"required"`
}

func (CreateAllResourcesCACommand) CommandType() models.CommandType {
	return models.CommandCreateAllResourcesCA
}
func (CreateAllResourcesCACommand) CommandGroup() models.CommandGroup { return models.CommandGroupUser }
func (c CreateAllResourcesCACommand) Summary() string {
	return fmt.Sprintf("Created All Resources CA %s", c.Name)
}
func (CreateAllResourcesCACommand) ParentCAID() uint { return 0 }
func (CreateAllResourcesCACommand) CAType() models.CAType { return models.CATypeAllResources }
func (c CreateAllResourcesCACommand) CAName() string { return c.Name }

type CreateRootCACommand struct {
	Name     string `validate:"required"`
	ParentID uint   `validate:"required"`
}

func (CreateRootCACommand) CommandType() models.CommandType { return models.CommandCreateRootCA }
func (CreateRootCACommand) CommandGroup() models.CommandGroup { return models.CommandGroupUser }
func (c CreateRootCACommand) Summary() string {
	return fmt.Sprintf("Created Root CA %s", c.Name)
}
func (c CreateRootCACommand) ParentCAID() uint { return c.ParentID }
func (CreateRootCACommand) CAType() models.CAType { return models.CATypeRoot }
func (c CreateRootCACommand) CAName() string { return c.Name }

type CreateIntermediateCACommand struct {
	Name     string `validate:"required"`
	ParentID uint   `validate:"required"`
}

func (CreateIntermediateCACommand) CommandType() models.CommandType {
	return models.CommandCreateIntermediateCA
}
func (CreateIntermediateCACommand) CommandGroup() models.CommandGroup { return models.CommandGroupUser }
func (c CreateIntermediateCACommand) Summary() string {
	return fmt.Sprintf("Created Intermediate CA %s", c.Name)
}
func (c CreateIntermediateCACommand) ParentCAID() uint { return c.ParentID }
func (CreateIntermediateCACommand) CAType() models.CAType { return models.CATypeIntermediate }
func (c CreateIntermediateCACommand) CAName() string { return c.Name }

type CreateHostedCACommand struct {
	Name     string `validate:"required"`
	ParentID uint   `validate:"required"`
}

func (CreateHostedCACommand) CommandType() models.CommandType { return models.CommandCreateHostedCA }
func (CreateHostedCACommand) CommandGroup() models.CommandGroup { return models.CommandGroupUser }
func (c CreateHostedCACommand) Summary() string {
	return fmt.Sprintf("Created Hosted CA %s", c.Name)
}
func (c CreateHostedCACommand) ParentCAID() uint { return c.ParentID }
func (CreateHostedCACommand) CAType() models.CAType { return models.CATypeHosted }
func (c CreateHostedCACommand) CAName() string { return c.Name }

type CreateNonHostedCACommand struct {
	Name     string `validate:"required"`
	ParentID uint   `validate:"required"`
}

func (CreateNonHostedCACommand) CommandType() models.CommandType {
	return models.CommandCreateNonHostedCA
}
func (CreateNonHostedCACommand) CommandGroup() models.CommandGroup { return models.CommandGroupUser }
func (c CreateNonHostedCACommand) Summary() string {
	return fmt.Sprintf("Created Non-Hosted CA %s", c.Name)
}
func (c CreateNonHostedCACommand) ParentCAID() uint { return c.ParentID }
func (CreateNonHostedCACommand) CAType() models.CAType { return models.CATypeNonHosted }
func (c CreateNonHostedCACommand) CAName() string { return c.Name }

// UpdateAllIncomingResourceCertificatesCommand reconciles one CA with its
// parent.
type UpdateAllIncomingResourceCertificatesCommand struct {
	CA models.VersionedID
}

func (UpdateAllIncomingResourceCertificatesCommand) CommandType() models.CommandType {
	return models.CommandUpdateAllIncomingCertificates
}
func (UpdateAllIncomingResourceCertificatesCommand) CommandGroup() models.CommandGroup {
	return models.CommandGroupSystem
}
func (UpdateAllIncomingResourceCertificatesCommand) Summary() string {
	return "Updated all incoming certificates"
}
func (c UpdateAllIncomingResourceCertificatesCommand) TargetCA() models.VersionedID { return c.CA }

type InitiateKeyRollCommand struct {
	CA         models.VersionedID
	MaxAgeDays int `validate:"gte=0"`
}

func (InitiateKeyRollCommand) CommandType() models.CommandType { return models.CommandInitiateKeyRoll }
func (InitiateKeyRollCommand) CommandGroup() models.CommandGroup { return models.CommandGroupUser }
func (c InitiateKeyRollCommand) Summary() string {
	return fmt.Sprintf("Initiated key roll for keys older than %d days", c.MaxAgeDays)
}
func (c InitiateKeyRollCommand) TargetCA() models.VersionedID { return c.CA }

type ActivatePendingKeysCommand struct {
	CA             models.VersionedID
	MinStagingTime time.Duration `validate:"gte=0"`
}

func (ActivatePendingKeysCommand) CommandType() models.CommandType {
	return models.CommandActivatePendingKeys
}
func (ActivatePendingKeysCommand) CommandGroup() models.CommandGroup { return models.CommandGroupSystem }
func (c ActivatePendingKeysCommand) Summary() string {
	return fmt.Sprintf("Activated pending keys staged for at least %s", c.MinStagingTime)
}
func (c ActivatePendingKeysCommand) TargetCA() models.VersionedID { return c.CA }

type RevokeOldKeysCommand struct {
	CA models.VersionedID
}

func (RevokeOldKeysCommand) CommandType() models.CommandType { return models.CommandRevokeOldKeys }
func (RevokeOldKeysCommand) CommandGroup() models.CommandGroup { return models.CommandGroupSystem }
func (RevokeOldKeysCommand) Summary() string { return "Revoked old keys" }
func (c RevokeOldKeysCommand) TargetCA() models.VersionedID { return c.CA }

// ProcessNonHostedProvisioningRequestCommand carries a decoded up-down
// request of a delegated child. Request is one of *models.ResourceClassListQuery,
// *models.CertificateIssuanceRequest or *models.CertificateRevocationRequest.
type ProcessNonHostedProvisioningRequestCommand struct {
	CA      models.VersionedID
	Request interface{} `validate:"required"`
}

func (ProcessNonHostedProvisioningRequestCommand) CommandType() models.CommandType {
	return models.CommandProcessNonHostedProvisioning
}
func (ProcessNonHostedProvisioningRequestCommand) CommandGroup() models.CommandGroup {
	return models.CommandGroupUser
}
func (c ProcessNonHostedProvisioningRequestCommand) Summary() string {
	switch c.Request.(type) {
	case *models.ResourceClassListQuery:
		return "Processed resource class list query"
	case *models.CertificateIssuanceRequest:
		return "Processed certificate issuance request"
	case *models.CertificateRevocationRequest:
		return "Processed certificate revocation request"
	default:
		return "Processed provisioning request"
	}
}
func (c ProcessNonHostedProvisioningRequestCommand) TargetCA() models.VersionedID { return c.CA }

type DeleteCACommand struct {
	CA models.VersionedID
}

func (DeleteCACommand) CommandType() models.CommandType { return models.CommandDeleteCA }
func (DeleteCACommand) CommandGroup() models.CommandGroup { return models.CommandGroupUser }
func (DeleteCACommand) Summary() string { return "Deleted CA" }
func (c DeleteCACommand) TargetCA() models.VersionedID { return c.CA }

type IssueUpdatedManifestAndCrlCommand struct {
	CA models.VersionedID
}

func (IssueUpdatedManifestAndCrlCommand) CommandType() models.CommandType {
	return models.CommandIssueUpdatedManifestAndCRL
}
func (IssueUpdatedManifestAndCrlCommand) CommandGroup() models.CommandGroup {
	return models.CommandGroupSystem
}
func (IssueUpdatedManifestAndCrlCommand) Summary() string {
	return "Issued updated manifest and CRL"
}
func (c IssueUpdatedManifestAndCrlCommand) TargetCA() models.VersionedID { return c.CA }

type ExpireOutgoingResourceCertificatesCommand struct {
	CA models.VersionedID
}

func (ExpireOutgoingResourceCertificatesCommand) CommandType() models.CommandType {
	return models.CommandExpireOutgoingCertificates
}
func (ExpireOutgoingResourceCertificatesCommand) CommandGroup() models.CommandGroup {
	return models.CommandGroupSystem
}
func (ExpireOutgoingResourceCertificatesCommand) Summary() string {
	return "Expired outgoing resource certificates"
}
func (c ExpireOutgoingResourceCertificatesCommand) TargetCA() models.VersionedID { return c.CA }

// DeleteWithdrawnPublishedObjectsCommand is not bound to a CA. Withdrawn
// objects are terminal, so it takes no CA locks.
type DeleteWithdrawnPublishedObjectsCommand struct {
	RetentionPeriod time.Duration `validate:"gte=0"`
}

func (DeleteWithdrawnPublishedObjectsCommand) CommandType() models.CommandType {
	return models.CommandDeleteWithdrawnPublishedObjects
}
func (DeleteWithdrawnPublishedObjectsCommand) CommandGroup() models.CommandGroup {
	return models.CommandGroupSystem
}
func (c DeleteWithdrawnPublishedObjectsCommand) Summary() string {
	return fmt.Sprintf("Deleted objects withdrawn more than %s ago", c.RetentionPeriod)
}
