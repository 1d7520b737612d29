package models

type CommandType string

const (
	CommandCreateAllResourcesCA            CommandType = "CreateAllResourcesCACommand"
	CommandCreateRootCA                    CommandType = "CreateRootCACommand"
	CommandCreateIntermediateCA            CommandType = "CreateIntermediateCACommand"
	CommandCreateHostedCA                  CommandType = "CreateHostedCACommand"
	CommandCreateNonHostedCA               CommandType = "CreateNonHostedCACommand"
	CommandUpdateAllIncomingCertificates   CommandType = "UpdateAllIncomingResourceCertificatesCommand"
	CommandInitiateKeyRoll                 CommandType = "InitiateKeyRollCommand"
	CommandActivatePendingKeys             CommandType = "ActivatePendingKeysCommand"
	CommandRevokeOldKeys                   CommandType = "RevokeOldKeysCommand"
	CommandProcessNonHostedProvisioning    CommandType = "ProcessNonHostedProvisioningRequestCommand"
	CommandDeleteCA                        CommandType = "DeleteCACommand"
	CommandIssueUpdatedManifestAndCRL      CommandType = "IssueUpdatedManifestAndCrlCommand"
	CommandExpireOutgoingCertificates      CommandType = "ExpireOutgoingResourceCertificatesCommand"
	CommandDeleteWithdrawnPublishedObjects CommandType = "DeleteWithdrawnPublishedObjectsCommand"
)

// CommandResult is the outcome of an accepted command. A command that changed
// nothing is still accepted and reports HasEffect false.
type CommandResult struct {
	CommandType CommandType `json:"command_type"`
	CAID        uint        `json:"ca_id"`
	CAVersion   int64       `json:"ca_version"`
	HasEffect   bool        `json:"has_effect"`
	Summary     string      `json:"summary,omitempty"`
	Events      []Event     `json:"events,omitempty"`
	Response    interface{} `json:"response,omitempty"`
}
