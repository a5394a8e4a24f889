package room

type AddParticipantParams struct {
	OwnerEmail string
	GuestEmail string
	// Limit caps the number of guests in the room, the owner not counted.
	Limit int
}
