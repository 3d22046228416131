package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys are the English texts.
const (
	MsgGenericFailure        = "Something went wrong, please try again."
	MsgInvalidBody           = "Invalid request body"
	MsgUnauthorized          = "User claims not found"
	MsgDesignNotFound        = "Design not found"
	MsgDesignKeyRequired     = "Design id is required"
	MsgItemNotFound          = "Item not found"
	MsgInvalidPatch          = "Invalid item attributes"
	MsgSaveFailed            = "Failed to save"
	MsgDeleteFailed          = "Failed to delete"
	MsgListFailed            = "Failed to list"
	MsgInvitationNotFound    = "Invitation not found"
	MsgInvitationExpired     = "This invitation has expired"
	MsgNoRecipients          = "At least one recipient with an email address is required"
	MsgMailFailed            = "The invitation could not be sent"
	MsgOrganizationNotFound  = "Organization not found"
	MsgOrganizationNameEmpty = "Organization name is required"
	MsgPaymentFailed         = "The payment could not be initiated"
	MsgPaymentDisabled       = "Payments are not configured"
	MsgUnknownPlan           = "Unknown plan %q"
	MsgUnsupportedLanguage   = "Unsupported language %q"
	MsgLanguageNotPersisted  = "The language was changed but could not be saved"
)

func init() {
	fr := map[string]string{
		MsgGenericFailure:        "Une erreur est survenue, veuillez réessayer.",
		MsgInvalidBody:           "Corps de requête invalide",
		MsgUnauthorized:          "Utilisateur non authentifié",
		MsgDesignNotFound:        "Création introuvable",
		MsgDesignKeyRequired:     "L'identifiant de la création est requis",
		MsgItemNotFound:          "Élément introuvable",
		MsgInvalidPatch:          "Attributs d'élément invalides",
		MsgSaveFailed:            "Échec de l'enregistrement",
		MsgDeleteFailed:          "Échec de la suppression",
		MsgListFailed:            "Échec du chargement de la liste",
		MsgInvitationNotFound:    "Invitation introuvable",
		MsgInvitationExpired:     "Cette invitation a expiré",
		MsgNoRecipients:          "Au moins un destinataire avec une adresse e-mail est requis",
		MsgMailFailed:            "L'invitation n'a pas pu être envoyée",
		MsgOrganizationNotFound:  "Organisation introuvable",
		MsgOrganizationNameEmpty: "Le nom de l'organisation est requis",
		MsgPaymentFailed:         "Le paiement n'a pas pu être initié",
		MsgPaymentDisabled:       "Les paiements ne sont pas configurés",
		MsgUnknownPlan:           "Formule inconnue %q",
		MsgUnsupportedLanguage:   "Langue non prise en charge %q",
		MsgLanguageNotPersisted:  "La langue a été changée mais n'a pas pu être enregistrée",
	}
	for key, text := range fr {
		_ = message.SetString(language.French, key, text)
	}
}
