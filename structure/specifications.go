package structure

import (
	"context"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/vocabulary"
)

// The write side of the catalog: curated specification documents and the
// links between them. Keys are derived from the specified names, so repeated
// writes of the same declaration are idempotent. Every write evicts the
// affected specification caches.

// CreateOrUpdateSpaceSpecification declares a space.
func (r *Repository) CreateOrUpdateSpaceSpecification(ctx context.Context, space types.Space) error {
	db, err := r.specDB()
	if err != nil {
		return err
	}
	if err := db.EnsureCollection(ctx, aql.InternalCollection(CollectionSpaces, false)); err != nil {
		return err
	}
	doc := types.Document{
		vocabulary.SchemaName:        string(space.Name),
		vocabulary.MetaAutoRelease:   space.AutoRelease,
		vocabulary.MetaClientSpace:   space.ClientSpace,
		vocabulary.MetaDeferCache:    space.DeferCache,
		vocabulary.MetaScopeRelevant: space.ScopeRelevant,
	}
	if err := db.UpsertDocument(ctx, CollectionSpaces, spaceSpecKey(space.Name), doc); err != nil {
		return err
	}
	r.EvictSpaceSpecifications()
	return nil
}

// RemoveSpaceSpecification removes a space declaration.
func (r *Repository) RemoveSpaceSpecification(ctx context.Context, space types.SpaceName) error {
	db, err := r.specDB()
	if err != nil {
		return err
	}
	if err := db.RemoveDocument(ctx, CollectionSpaces+"/"+spaceSpecKey(space)); err != nil {
		return err
	}
	r.EvictSpaceSpecifications()
	r.EvictTypesInSpaceBySpecification(space)
	return nil
}

// CreateOrUpdateTypeSpecification declares a type, optionally scoped to a
// client space overlay.
func (r *Repository) CreateOrUpdateTypeSpecification(ctx context.Context, typeName string, payload types.Document, clientSpace types.SpaceName) error {
	if typeName == "" {
		return errors.WrapInvalid(nil, "structure", "CreateOrUpdateTypeSpecification", "type name is required")
	}
	db, err := r.specDB()
	if err != nil {
		return err
	}
	collection := CollectionTypes
	if clientSpace != "" {
		collection = clientCollection(clientSpace, CollectionTypes)
	}
	if err := db.EnsureCollection(ctx, aql.InternalCollection(collection, false)); err != nil {
		return err
	}
	doc := payload.Copy()
	doc[vocabulary.SchemaIdentifier] = typeName
	if err := db.UpsertDocument(ctx, collection, typeSpecKey(typeName), doc); err != nil {
		return err
	}
	if clientSpace != "" {
		r.EvictClientTypeSpecification(clientSpace, typeName)
	} else {
		r.EvictTypeSpecification(typeName)
	}
	return nil
}

// RemoveTypeSpecification removes a type declaration.
func (r *Repository) RemoveTypeSpecification(ctx context.Context, typeName string, clientSpace types.SpaceName) error {
	db, err := r.specDB()
	if err != nil {
		return err
	}
	collection := CollectionTypes
	if clientSpace != "" {
		collection = clientCollection(clientSpace, CollectionTypes)
	}
	if err := db.RemoveDocument(ctx, collection+"/"+typeSpecKey(typeName)); err != nil {
		return err
	}
	if clientSpace != "" {
		r.EvictClientTypeSpecification(clientSpace, typeName)
	} else {
		r.EvictTypeSpecification(typeName)
	}
	return nil
}

// AddTypeToSpace links a declared type into a space.
func (r *Repository) AddTypeToSpace(ctx context.Context, space types.SpaceName, typeName string) error {
	db, err := r.specDB()
	if err != nil {
		return err
	}
	if err := db.EnsureCollection(ctx, aql.InternalCollection(CollectionTypeInSpace, true)); err != nil {
		return err
	}
	link := types.Document{
		vocabulary.InternalFrom: CollectionSpaces + "/" + spaceSpecKey(space),
		vocabulary.InternalTo:   CollectionTypes + "/" + typeSpecKey(typeName),
	}
	if err := db.UpsertDocument(ctx, CollectionTypeInSpace, typeInSpaceKey(space, typeName), link); err != nil {
		return err
	}
	r.EvictTypesInSpaceBySpecification(space)
	return nil
}

// RemoveTypeFromSpace unlinks a type from a space.
func (r *Repository) RemoveTypeFromSpace(ctx context.Context, space types.SpaceName, typeName string) error {
	db, err := r.specDB()
	if err != nil {
		return err
	}
	if err := db.RemoveDocument(ctx, CollectionTypeInSpace+"/"+typeInSpaceKey(space, typeName)); err != nil {
		return err
	}
	r.EvictTypesInSpaceBySpecification(space)
	return nil
}

// CreateOrUpdatePropertySpecification declares a property, optionally scoped
// to a client space overlay.
func (r *Repository) CreateOrUpdatePropertySpecification(ctx context.Context, property string, payload types.Document, clientSpace types.SpaceName) error {
	if property == "" {
		return errors.WrapInvalid(nil, "structure", "CreateOrUpdatePropertySpecification", "property name is required")
	}
	db, err := r.specDB()
	if err != nil {
		return err
	}
	collection := CollectionProperties
	if clientSpace != "" {
		collection = clientCollection(clientSpace, CollectionProperties)
	}
	if err := db.EnsureCollection(ctx, aql.InternalCollection(collection, false)); err != nil {
		return err
	}
	doc := payload.Copy()
	doc[vocabulary.SchemaIdentifier] = property
	if err := db.UpsertDocument(ctx, collection, propertySpecKey(property), doc); err != nil {
		return err
	}
	if clientSpace != "" {
		r.EvictClientPropertySpecification(clientSpace, property)
	} else {
		r.EvictPropertySpecification(property)
	}
	return nil
}

// RemovePropertySpecification removes a property declaration.
func (r *Repository) RemovePropertySpecification(ctx context.Context, property string, clientSpace types.SpaceName) error {
	db, err := r.specDB()
	if err != nil {
		return err
	}
	collection := CollectionProperties
	if clientSpace != "" {
		collection = clientCollection(clientSpace, CollectionProperties)
	}
	if err := db.RemoveDocument(ctx, collection+"/"+propertySpecKey(property)); err != nil {
		return err
	}
	if clientSpace != "" {
		r.EvictClientPropertySpecification(clientSpace, property)
	} else {
		r.EvictPropertySpecification(property)
	}
	return nil
}

// AddPropertyToType links a declared property into a type, carrying the
// in-type overrides on the link itself.
func (r *Repository) AddPropertyToType(ctx context.Context, typeName, property string, overrides types.Document, clientSpace types.SpaceName) error {
	db, err := r.specDB()
	if err != nil {
		return err
	}
	typeColl, edgeColl := CollectionTypes, CollectionPropertyInType
	if clientSpace != "" {
		typeColl = clientCollection(clientSpace, CollectionTypes)
		edgeColl = clientCollection(clientSpace, CollectionPropertyInType)
	}
	if err := db.EnsureCollection(ctx, aql.InternalCollection(edgeColl, true)); err != nil {
		return err
	}
	link := overrides.Copy()
	link[vocabulary.InternalFrom] = typeColl + "/" + typeSpecKey(typeName)
	link[vocabulary.InternalTo] = CollectionProperties + "/" + propertySpecKey(property)
	if err := db.UpsertDocument(ctx, edgeColl, propertyInTypeKey(typeName, property), link); err != nil {
		return err
	}
	if clientSpace != "" {
		r.EvictClientPropertiesOfTypeBySpecification(clientSpace, typeName)
	} else {
		r.EvictPropertiesOfTypeBySpecification(typeName)
	}
	return nil
}

// RemovePropertyFromType unlinks a property from a type.
func (r *Repository) RemovePropertyFromType(ctx context.Context, typeName, property string, clientSpace types.SpaceName) error {
	db, err := r.specDB()
	if err != nil {
		return err
	}
	edgeColl := CollectionPropertyInType
	if clientSpace != "" {
		edgeColl = clientCollection(clientSpace, CollectionPropertyInType)
	}
	if err := db.RemoveDocument(ctx, edgeColl+"/"+propertyInTypeKey(typeName, property)); err != nil {
		return err
	}
	if clientSpace != "" {
		r.EvictClientPropertiesOfTypeBySpecification(clientSpace, typeName)
	} else {
		r.EvictPropertiesOfTypeBySpecification(typeName)
	}
	return nil
}
